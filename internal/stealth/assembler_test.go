package stealth

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/shroud/internal/fingerprint"
)

func TestScriptDeterministic(t *testing.T) {
	p := fingerprint.NewProfile("script-seed", fingerprint.DeviceDesktop)
	a := NewAssembler(p)

	first := a.Script()
	assert.Equal(t, first, a.Script(), "cached render must be stable")
	assert.Equal(t, first, NewAssembler(p).Script(), "fresh assembler over same profile must match")

	other := NewAssembler(fingerprint.NewProfile("other-seed", fingerprint.DeviceDesktop)).Script()
	assert.NotEqual(t, first, other)
}

func TestScriptCarriesProfileValues(t *testing.T) {
	p := fingerprint.NewProfile("carry-seed", fingerprint.DeviceDesktop)
	script := NewAssembler(p).Script()

	assert.Contains(t, script, fmt.Sprintf("'hardwareConcurrency', %d", p.HardwareConcurrency))
	assert.Contains(t, script, fmt.Sprintf("'deviceMemory', %d", p.DeviceMemory))
	assert.Contains(t, script, js(p.Platform))
	assert.Contains(t, script, js(p.WebGLVendor))
	assert.Contains(t, script, js(p.WebGLRenderer))
	assert.Contains(t, script, js(p.Languages))
	assert.Contains(t, script, fmt.Sprintf("const seed = %d", p.CanvasNoiseSeed()))
	assert.Contains(t, script, fmt.Sprintf("'width', %d", p.ScreenWidth))
	assert.Contains(t, script, fmt.Sprintf("'availHeight', %d", p.AvailHeight()))
}

func TestScriptIdempotenceGuard(t *testing.T) {
	script := NewAssembler(fingerprint.NewProfile("guard-seed", "")).Script()

	// The marker install must precede every override so a second
	// evaluation returns before touching anything.
	markerCheck := strings.Index(script, "if (window.__shroud_applied__) { return; }")
	firstOverride := strings.Index(script, "webdriver")
	require.GreaterOrEqual(t, markerCheck, 0)
	require.GreaterOrEqual(t, firstOverride, 0)
	assert.Less(t, markerCheck, firstOverride)
}

func TestScriptShape(t *testing.T) {
	script := NewAssembler(fingerprint.NewProfile("shape-seed", "")).Script()

	assert.True(t, strings.HasPrefix(script, "(() => {"))
	assert.True(t, strings.HasSuffix(script, "})();"))
	assert.Contains(t, script, "'use strict'")

	// Each override family ships individually guarded.
	assert.GreaterOrEqual(t, strings.Count(script, "guard(() =>"), 6)

	// Magic WebGL parameter ids.
	assert.Contains(t, script, "37445")
	assert.Contains(t, script, "37446")

	// No stray formatting verbs survive rendering.
	assert.NotContains(t, script, "%!")
	assert.NotContains(t, script, "%d")
}

func TestScriptCanvasExportLeavesSourceUntouched(t *testing.T) {
	script := NewAssembler(fingerprint.NewProfile("canvas-seed", "")).Script()

	// The export path perturbs a copied frame and encodes an offscreen
	// canvas. Noising the source pixels would accumulate across reads
	// and make repeated exports of the same canvas disagree.
	assert.Contains(t, script, "document.createElement('canvas')")
	assert.Contains(t, script, "copy.getContext('2d').putImageData(image, 0, 0)")
	assert.Contains(t, script, "origToDataURL.apply(copy, args)")
	assert.NotContains(t, script, "srcCtx.putImageData")
}

func TestScriptMobileProfile(t *testing.T) {
	p := fingerprint.NewProfile("mobile-shape", fingerprint.DeviceMobile)
	script := NewAssembler(p).Script()
	assert.Contains(t, script, js(p.Platform))
	assert.Contains(t, script, fmt.Sprintf("'height', %d", p.ScreenHeight))
}

func TestStatementSeparator(t *testing.T) {
	// Joining the script with a following expression must keep both
	// statements independent even when the script drops its trailing
	// semicolon form.
	joined := NewAssembler(fingerprint.NewProfile("sep", "")).Script() + StatementSeparator + "1+1"
	assert.True(t, strings.HasSuffix(joined, "})();" + StatementSeparator + "1+1"))
}

func TestJSLiteral(t *testing.T) {
	assert.Equal(t, `"MacIntel"`, js("MacIntel"))
	assert.Equal(t, `["en-US","en"]`, js([]string{"en-US", "en"}))
	assert.Equal(t, `"with \"quotes\""`, js(`with "quotes"`))
	assert.Panics(t, func() { js(make(chan int)) })
}
