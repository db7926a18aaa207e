package aigateway

// Operation names shared by the provider adapters.
const (
	OpGenerateImage    = "generate-image"
	OpEnhanceImage     = "enhance-image"
	OpRemoveBackground = "remove-background"
	OpUpscaleImage     = "upscale-image"
	OpConvertImage     = "convert-image"
	OpGenerateVideo    = "generate-video"
	OpGenerateShorts   = "generate-shorts"
	OpGenerateContent  = "generate-content"
	OpGenerateCode     = "generate-code"
	OpExplainCode      = "explain-code"
	OpDebugCode        = "debug-code"
)

// Params is the closed set of operation parameter types. Each adapter
// validates the params for its own operations before any network call.
type Params interface {
	isParams()
}

// ProgressFunc receives discrete progress milestones (0-100) from
// long-running operations. A nil ProgressFunc is always safe to pass.
type ProgressFunc func(percent int)

// ImageGenerationParams configures a generate-image call.
// Size and Quality choices are provider-specific and checked by the adapter.
type ImageGenerationParams struct {
	Prompt  string
	Style   string
	Size    string
	Quality string
}

// ImageEnhanceParams configures an enhance-image call.
type ImageEnhanceParams struct {
	ImageURL string
	Upscale  bool
	Denoise  bool
	Enhance  bool
}

// BackgroundRemovalParams configures a remove-background call. Exactly one
// of ImageURL and ImageData must be set; adapters choose a JSON body for
// URLs and a multipart form for raw bytes.
type BackgroundRemovalParams struct {
	ImageURL  string
	ImageData []byte
}

// ImageUpscaleParams configures an upscale-image call.
type ImageUpscaleParams struct {
	ImageURL string
	Scale    int
}

// ImageConversionParams configures a convert-image call.
type ImageConversionParams struct {
	ImageURL string
	Format   string
}

// VideoGenerationParams configures a generate-video call animating a source
// image. Duration is in seconds and is clamped by the adapter.
type VideoGenerationParams struct {
	ImageURL   string
	Prompt     string
	Style      string // realistic, animated, 3d, motion (optional)
	Duration   int
	Resolution string // 720p, 1080p, 2k (optional)
}

// ShortsParams configures a generate-shorts call producing a captioned
// social media short from a source video.
type ShortsParams struct {
	VideoURL string
	Caption  string
}

// ContentParams configures a generate-content call.
type ContentParams struct {
	Prompt string
	Type   string // article, social, marketing, seo
	Tone   string // professional, casual, friendly, formal (optional)
	Length string // short, medium, long (optional)
}

// CodeParams configures a generate-code call.
type CodeParams struct {
	Prompt       string
	Language     string
	Framework    string
	Architecture string
}

// CodeReviewParams configures explain-code and debug-code calls.
type CodeReviewParams struct {
	Code     string
	Language string
}

func (ImageGenerationParams) isParams()   {}
func (ImageEnhanceParams) isParams()      {}
func (BackgroundRemovalParams) isParams() {}
func (ImageUpscaleParams) isParams()      {}
func (ImageConversionParams) isParams()   {}
func (VideoGenerationParams) isParams()   {}
func (ShortsParams) isParams()            {}
func (ContentParams) isParams()           {}
func (CodeParams) isParams()              {}
func (CodeReviewParams) isParams()        {}
