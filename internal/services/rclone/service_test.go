package rclone

import (
	"context"
	"testing"
)

func TestListParsesEntries(t *testing.T) {
	svc := NewService("rclone")
	var gotArgs []string
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		gotArgs = append([]string{name}, args...)
		return `[{"Path":"KV-0001 - Queen - Bohemian Rhapsody.mp4","Name":"KV-0001 - Queen - Bohemian Rhapsody.mp4","Size":1024,"IsDir":false},{"Path":"drafts","Name":"drafts","Size":-1,"IsDir":true}]`, nil
	})

	entries, err := svc.List(context.Background(), "gdrive:karaoke")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(gotArgs) != 3 || gotArgs[1] != "lsjson" || gotArgs[2] != "gdrive:karaoke" {
		t.Fatalf("unexpected argv: %v", gotArgs)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Name != "KV-0001 - Queen - Bohemian Rhapsody.mp4" || entries[0].IsDir {
		t.Fatalf("unexpected first entry: %#v", entries[0])
	}
	if !entries[1].IsDir {
		t.Fatalf("expected directory entry: %#v", entries[1])
	}
}

func TestListRejectsBadJSON(t *testing.T) {
	svc := NewService("rclone")
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "not json", nil
	})
	if _, err := svc.List(context.Background(), "gdrive:karaoke"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCopyToBuildsArgv(t *testing.T) {
	svc := NewService("rclone")
	var gotArgs []string
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		gotArgs = args
		return "", nil
	})

	err := svc.CopyTo(context.Background(), "/library/final.mp4", "gdrive:karaoke/final.mp4")
	if err != nil {
		t.Fatalf("CopyTo() error = %v", err)
	}
	want := []string{"copyto", "/library/final.mp4", "gdrive:karaoke/final.mp4"}
	if len(gotArgs) != len(want) {
		t.Fatalf("argv = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Fatalf("argv = %v, want %v", gotArgs, want)
		}
	}
}

func TestLinkTrimsOutput(t *testing.T) {
	svc := NewService("rclone")
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "https://drive.example.com/d/abc123\n", nil
	})

	link, err := svc.Link(context.Background(), "gdrive:karaoke/final.mp4")
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if link != "https://drive.example.com/d/abc123" {
		t.Fatalf("Link() = %q", link)
	}
}

func TestLinkRejectsEmptyResponse(t *testing.T) {
	svc := NewService("rclone")
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "   \n", nil
	})
	if _, err := svc.Link(context.Background(), "gdrive:karaoke/final.mp4"); err == nil {
		t.Fatal("expected error for empty link output")
	}
}

func TestInputValidation(t *testing.T) {
	svc := NewService("")
	ctx := context.Background()
	if _, err := svc.List(ctx, " "); err == nil {
		t.Fatal("List should require a remote path")
	}
	if err := svc.CopyTo(ctx, "", "remote:x"); err == nil {
		t.Fatal("CopyTo should require a local path")
	}
	if err := svc.CopyTo(ctx, "/x", ""); err == nil {
		t.Fatal("CopyTo should require a remote path")
	}
	if _, err := svc.Link(ctx, ""); err == nil {
		t.Fatal("Link should require a remote path")
	}
}
