package whisperx

// Config captures runtime settings for WhisperX transcription.
type Config struct {
	// Model is the WhisperX model to use (e.g., "large-v3").
	Model string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
	// Language forces a transcription language; empty means autodetect.
	Language string
}

// WhisperX invocation constants.
const (
	DefaultModel   = "large-v3"
	BatchSize      = "4"
	OutputFormat   = "all"
	VADMethod      = "silero"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "float32"
)
