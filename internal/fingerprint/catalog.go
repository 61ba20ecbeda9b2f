package fingerprint

// Static attribute catalog the generator picks from. Read-only after
// init; shared freely across sessions.

type screenOption struct {
	Width, Height int
}

var screenOptions = []screenOption{
	{1920, 1080},
	{2560, 1440},
	{1366, 768},
	{1440, 900},
	{1536, 864},
	{1680, 1050},
	{1600, 900},
	{1920, 1200},
}

var mobileScreenOptions = []screenOption{
	{390, 844},
	{393, 873},
	{412, 915},
	{430, 932},
}

var tabletScreenOptions = []screenOption{
	{768, 1024},
	{820, 1180},
	{1024, 1366},
}

type gpuOption struct {
	Vendor, Renderer string
}

var gpuOptions = map[string][]gpuOption{
	"Windows": {
		{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 4070 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 770 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) Iris(R) Xe Graphics Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 7600 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	},
	"macOS": {
		{"Google Inc. (Apple)", "ANGLE (Apple, ANGLE Metal Renderer: Apple M1 Pro, Unspecified Version)"},
		{"Google Inc. (Apple)", "ANGLE (Apple, ANGLE Metal Renderer: Apple M2, Unspecified Version)"},
		{"Google Inc. (Apple)", "ANGLE (Apple, ANGLE Metal Renderer: Apple M3, Unspecified Version)"},
	},
	"Linux": {
		{"Google Inc. (Intel)", "ANGLE (Intel, Mesa Intel(R) UHD Graphics 630 (CFL GT2), OpenGL 4.6)"},
		{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660/PCIe/SSE2, OpenGL 4.5)"},
	},
	"Android": {
		{"Qualcomm", "Adreno (TM) 740"},
		{"ARM", "Mali-G715-Immortalis MC11"},
	},
	"iOS": {
		{"Apple Inc.", "Apple GPU"},
	},
}

type osOption struct {
	Name     string
	Versions []string
	// Legacy navigator.platform value.
	Platform string
	// User-Agent OS token, e.g. "Windows NT 10.0; Win64; x64".
	UAToken string
}

var desktopOSOptions = []osOption{
	{"Windows", []string{"10.0", "11.0"}, "Win32", "Windows NT 10.0; Win64; x64"},
	{"macOS", []string{"13.6", "14.4", "14.5"}, "MacIntel", "Macintosh; Intel Mac OS X 10_15_7"},
	{"Linux", []string{"6.5", "6.8"}, "Linux x86_64", "X11; Linux x86_64"},
}

var mobileOSOptions = []osOption{
	{"Android", []string{"13", "14"}, "Linux armv8l", "Linux; Android 14; Pixel 8"},
	{"iOS", []string{"17.4", "17.5"}, "iPhone", "iPhone; CPU iPhone OS 17_5 like Mac OS X"},
}

var chromeVersions = []string{
	"130.0.0.0",
	"131.0.0.0",
	"132.0.0.0",
}

var timezoneOptions = []string{
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Berlin",
	"Europe/Paris",
	"Asia/Tokyo",
	"Australia/Sydney",
}

type localeOption struct {
	Locale    string
	Languages []string
}

var localeOptions = []localeOption{
	{"en-US", []string{"en-US", "en"}},
	{"en-GB", []string{"en-GB", "en"}},
	{"de-DE", []string{"de-DE", "de", "en"}},
	{"fr-FR", []string{"fr-FR", "fr", "en"}},
	{"es-ES", []string{"es-ES", "es", "en"}},
}

var concurrencyOptions = []int{4, 6, 8, 10, 12, 16}

// Device memory classes as navigator.deviceMemory reports them (GiB).
var memoryOptions = []int{4, 8, 16, 32}
