// Package ytdlp wraps the yt-dlp CLI to fetch source media from URLs.
package ytdlp
