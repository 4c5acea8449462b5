// conf/consts.go hard coded constants
package conf

// Directory names of the artifact and source audio layout.
const (
	DirAudioSegments = "audio_segments"
	DirSpectrograms  = "spectrograms"
	DirCompleted     = "completed"
	DirInbox         = "inbox"
	DirFailed        = "failed"
)

const (
	OutputSampleBitDepth = 16 // Bit depth of extracted audio segments
	OutputChannels       = 1  // Extracted segments are always mono
)
