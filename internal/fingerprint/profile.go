package fingerprint

import (
	"fmt"

	"github.com/google/uuid"
)

// DeviceClass selects which attribute tables a profile draws from.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
)

// Behavior holds the behavioral parameters humanoid input synthesis
// reads. Derived from the seed like every other attribute.
type Behavior struct {
	TypingDelayMinMs int     `json:"typing_delay_min_ms"`
	TypingDelayMaxMs int     `json:"typing_delay_max_ms"`
	MouseJitterPx    float64 `json:"mouse_jitter_px"`
	MousePrecision   float64 `json:"mouse_precision"`
}

// Profile is an immutable bundle of spoofed device and browser
// attributes for one logical identity. Two profiles built from the
// same seed are byte-identical; after construction a Profile is
// read-only and may be shared across sessions without synchronization.
type Profile struct {
	Seed        string      `json:"seed"`
	DeviceClass DeviceClass `json:"device_class"`

	OSName         string `json:"os_name"`
	OSVersion      string `json:"os_version"`
	BrowserName    string `json:"browser_name"`
	BrowserVersion string `json:"browser_version"`

	UserAgent string   `json:"user_agent"`
	Platform  string   `json:"platform"`
	Locale    string   `json:"locale"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"timezone"`

	ScreenWidth    int `json:"screen_width"`
	ScreenHeight   int `json:"screen_height"`
	ViewportWidth  int `json:"viewport_width"`
	ViewportHeight int `json:"viewport_height"`

	HardwareConcurrency int `json:"hardware_concurrency"`
	DeviceMemory        int `json:"device_memory"`

	WebGLVendor   string `json:"webgl_vendor"`
	WebGLRenderer string `json:"webgl_renderer"`

	Behavior Behavior `json:"behavior"`
}

// NewProfile derives a complete profile from the given seed. An empty
// seed requests a fresh random identity.
func NewProfile(seed string, class DeviceClass) *Profile {
	if seed == "" {
		seed = uuid.New().String()
	}
	if class == "" {
		class = DeviceDesktop
	}

	var (
		os     osOption
		screen screenOption
	)
	switch class {
	case DeviceMobile:
		os = Pick(seed, "os", mobileOSOptions)
		screen = Pick(seed, "screen", mobileScreenOptions)
	case DeviceTablet:
		os = Pick(seed, "os", mobileOSOptions)
		screen = Pick(seed, "screen", tabletScreenOptions)
	default:
		os = Pick(seed, "os", desktopOSOptions)
		screen = Pick(seed, "screen", screenOptions)
	}

	gpu := Pick(seed, "gpu", gpuOptions[os.Name])
	loc := Pick(seed, "locale", localeOptions)
	version := Pick(seed, "browser.version", chromeVersions)

	p := &Profile{
		Seed:        seed,
		DeviceClass: class,

		OSName:         os.Name,
		OSVersion:      Pick(seed, "os.version", os.Versions),
		BrowserName:    "Chrome",
		BrowserVersion: version,

		UserAgent: userAgent(os.UAToken, version, class),
		Platform:  os.Platform,
		Locale:    loc.Locale,
		Languages: loc.Languages,
		Timezone:  Pick(seed, "timezone", timezoneOptions),

		ScreenWidth:  screen.Width,
		ScreenHeight: screen.Height,
		// Window chrome eats a fixed slice of the screen.
		ViewportWidth:  screen.Width,
		ViewportHeight: screen.Height - DeriveIntRange(seed, "viewport.trim", 70, 130),

		HardwareConcurrency: Pick(seed, "hardware.concurrency", concurrencyOptions),
		DeviceMemory:        Pick(seed, "device.memory", memoryOptions),

		WebGLVendor:   gpu.Vendor,
		WebGLRenderer: gpu.Renderer,

		Behavior: Behavior{
			TypingDelayMinMs: DeriveIntRange(seed, "behavior.typing.min", 40, 80),
			TypingDelayMaxMs: DeriveIntRange(seed, "behavior.typing.max", 120, 240),
			MouseJitterPx:    1 + 2*DeriveFloat(seed, "behavior.mouse.jitter"),
			MousePrecision:   0.7 + 0.3*DeriveFloat(seed, "behavior.mouse.precision"),
		},
	}
	return p
}

// AvailWidth reports screen.availWidth for the profile.
func (p *Profile) AvailWidth() int { return p.ScreenWidth }

// AvailHeight reports screen.availHeight, leaving room for the OS taskbar.
func (p *Profile) AvailHeight() int { return p.ScreenHeight - 40 }

// CanvasNoiseSeed keys the injected per-pixel canvas noise.
func (p *Profile) CanvasNoiseSeed() uint32 {
	return uint32(Derive(p.Seed, "canvas.noise"))
}

// AudioDrift is the sub-audible oscillator frequency offset applied by
// the injected audio override.
func (p *Profile) AudioDrift() float64 {
	return (DeriveFloat(p.Seed, "audio.drift") - 0.5) * 1e-4
}

func userAgent(osToken, version string, class DeviceClass) string {
	if class == DeviceMobile {
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Mobile Safari/537.36", osToken, version)
	}
	return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", osToken, version)
}
