// Package stealth renders a fingerprint profile into page-scope
// JavaScript that masks automation signals. The host side only
// assembles and transmits this text; it never executes it.
package stealth

import (
	"fmt"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/shroud/internal/fingerprint"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatementSeparator joins the assembled script with a rewritten
// evaluation expression.
const StatementSeparator = ";\n"

// appliedMarker makes re-evaluation of the script a no-op.
const appliedMarker = "__shroud_applied__"

// Assembler builds the injectable override script for one profile.
// The output is deterministic for a given profile, so it is rendered
// once and cached.
type Assembler struct {
	profile *fingerprint.Profile

	once   sync.Once
	script string
}

// NewAssembler returns an assembler bound to the given profile.
func NewAssembler(p *fingerprint.Profile) *Assembler {
	return &Assembler{profile: p}
}

// Script returns the single self-contained override script. Evaluating
// it twice in the same page context is safe: the first run installs a
// marker the second run bails on. Every override is individually
// guarded so a missing API in the target page never throws.
func (a *Assembler) Script() string {
	a.once.Do(func() { a.script = a.render() })
	return a.script
}

func (a *Assembler) render() string {
	var b strings.Builder
	b.WriteString("(() => {\n'use strict';\n")
	fmt.Fprintf(&b, "if (window.%s) { return; }\n", appliedMarker)
	fmt.Fprintf(&b, "try { Object.defineProperty(window, %s, { value: true, configurable: false, enumerable: false }); } catch (e) { window.%s = true; }\n",
		js(appliedMarker), appliedMarker)

	// Shared helpers. guard() keeps one unavailable API from sinking
	// the rest of the overrides.
	b.WriteString(`const guard = (fn) => { try { fn(); } catch (e) {} };
const prop = (obj, name, value) => {
  if (!obj) { return; }
  Object.defineProperty(obj, name, { get: () => value, configurable: true });
};
`)

	a.renderNavigator(&b)
	a.renderScreen(&b)
	a.renderWebGL(&b)
	a.renderCanvas(&b)
	a.renderAudio(&b)
	a.renderChromeRuntime(&b)

	b.WriteString("})();")
	return b.String()
}

func (a *Assembler) renderNavigator(b *strings.Builder) {
	p := a.profile
	b.WriteString(`guard(() => {
  const nav = Object.getPrototypeOf(navigator);
  if ('webdriver' in nav) { delete nav.webdriver; }
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
});
`)
	fmt.Fprintf(b, "guard(() => { prop(navigator, 'hardwareConcurrency', %d); });\n", p.HardwareConcurrency)
	fmt.Fprintf(b, "guard(() => { prop(navigator, 'deviceMemory', %d); });\n", p.DeviceMemory)
	fmt.Fprintf(b, "guard(() => { prop(navigator, 'platform', %s); });\n", js(p.Platform))
	fmt.Fprintf(b, "guard(() => { prop(navigator, 'language', %s); });\n", js(p.Languages[0]))
	fmt.Fprintf(b, "guard(() => { prop(navigator, 'languages', Object.freeze(%s)); });\n", js(p.Languages))
}

func (a *Assembler) renderScreen(b *strings.Builder) {
	p := a.profile
	fmt.Fprintf(b, `guard(() => {
  prop(screen, 'width', %d);
  prop(screen, 'height', %d);
  prop(screen, 'availWidth', %d);
  prop(screen, 'availHeight', %d);
});
`, p.ScreenWidth, p.ScreenHeight, p.AvailWidth(), p.AvailHeight())
}

func (a *Assembler) renderWebGL(b *strings.Builder) {
	p := a.profile
	// 37445/37446 are UNMASKED_VENDOR_WEBGL / UNMASKED_RENDERER_WEBGL.
	fmt.Fprintf(b, `guard(() => {
  const vendor = %s;
  const renderer = %s;
  const patch = (ctor) => {
    if (typeof ctor === 'undefined') { return; }
    const orig = ctor.prototype.getParameter;
    ctor.prototype.getParameter = function (param) {
      if (param === 37445) { return vendor; }
      if (param === 37446) { return renderer; }
      return orig.call(this, param);
    };
  };
  patch(window.WebGLRenderingContext);
  patch(window.WebGL2RenderingContext);
});
`, js(p.WebGLVendor), js(p.WebGLRenderer))
}

func (a *Assembler) renderCanvas(b *strings.Builder) {
	// Per-pixel noise keyed off the profile seed: the same profile
	// perturbs the same pixel identically on every read, on every
	// canvas, in every process.
	fmt.Fprintf(b, `guard(() => {
  const seed = %d;
  const noiseAt = (i) => {
    let h = (seed ^ i) >>> 0;
    h = Math.imul(h ^ (h >>> 16), 2246822507) >>> 0;
    h = Math.imul(h ^ (h >>> 13), 3266489909) >>> 0;
    return (h %% 3) - 1;
  };
  const perturb = (data) => {
    for (let i = 0; i < data.length; i += 4) {
      data[i] = Math.min(255, Math.max(0, data[i] + noiseAt(i)));
    }
  };
  const origGetImageData = CanvasRenderingContext2D.prototype.getImageData;
  CanvasRenderingContext2D.prototype.getImageData = function (...args) {
    const image = origGetImageData.apply(this, args);
    perturb(image.data);
    return image;
  };
  const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function (...args) {
    const srcCtx = this.getContext('2d');
    if (!srcCtx || !this.width || !this.height) { return origToDataURL.apply(this, args); }
    // Export from an offscreen copy: writing noise back into the
    // source would compound it on every read.
    const image = origGetImageData.call(srcCtx, 0, 0, this.width, this.height);
    perturb(image.data);
    const copy = document.createElement('canvas');
    copy.width = this.width;
    copy.height = this.height;
    copy.getContext('2d').putImageData(image, 0, 0);
    return origToDataURL.apply(copy, args);
  };
});
`, a.profile.CanvasNoiseSeed())
}

func (a *Assembler) renderAudio(b *strings.Builder) {
	fmt.Fprintf(b, `guard(() => {
  const drift = %g;
  const Ctx = window.AudioContext || window.webkitAudioContext;
  if (!Ctx) { return; }
  const origOsc = Ctx.prototype.createOscillator;
  Ctx.prototype.createOscillator = function (...args) {
    const osc = origOsc.apply(this, args);
    guard(() => { osc.frequency.value = osc.frequency.value * (1 + drift); });
    return osc;
  };
  const origAnalyser = Ctx.prototype.createAnalyser;
  Ctx.prototype.createAnalyser = function (...args) {
    const analyser = origAnalyser.apply(this, args);
    const origFreqData = analyser.getFloatFrequencyData;
    analyser.getFloatFrequencyData = function (array) {
      origFreqData.apply(this, arguments);
      for (let i = 0; i < array.length; i++) { array[i] += drift * (i %% 7); }
    };
    return analyser;
  };
});
`, a.profile.AudioDrift())
}

func (a *Assembler) renderChromeRuntime(b *strings.Builder) {
	// Headless builds ship without window.chrome; a bare stand-in is
	// enough to pass presence checks.
	b.WriteString(`guard(() => {
  if (window.chrome && window.chrome.runtime) { return; }
  const existing = window.chrome || {};
  existing.runtime = existing.runtime || {
    connect: () => {},
    sendMessage: () => {},
    onMessage: { addListener: () => {}, removeListener: () => {} },
  };
  existing.loadTimes = existing.loadTimes || (() => ({
    requestTime: Date.now() / 1000,
    startLoadTime: Date.now() / 1000,
    commitLoadTime: Date.now() / 1000,
    navigationStart: Date.now() / 1000,
  }));
  existing.csi = existing.csi || (() => ({ onloadT: Date.now(), startE: Date.now(), tran: 15 }));
  window.chrome = existing;
});
`)
}

// js marshals a Go value into a JavaScript literal.
func js(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		// Only reachable with non-marshalable values, which the
		// profile never contains.
		panic(fmt.Sprintf("stealth: cannot render literal: %v", err))
	}
	return string(out)
}
