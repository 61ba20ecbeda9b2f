package stealth

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shroud/internal/fingerprint"
)

// Apply pushes a profile's overrides over an already-attached chromedp
// context: emulation-level user agent, device metrics, timezone and
// locale, plus the assembled override script registered to run before
// any page script. Used when the caller drives the browser directly
// instead of (or in addition to) running behind the interception proxy.
func Apply(profile *fingerprint.Profile, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	asm := NewAssembler(profile)
	return chromedp.Tasks{
		network.Enable(),
		setAcceptLanguage(profile, l),
		setUserAgent(profile, l),
		setDeviceMetrics(profile, l),
		setEnvironment(profile, l),
		registerScript(asm, l),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Profile applied", zap.String("seed", profile.Seed), zap.String("user_agent", profile.UserAgent))
			return nil
		}),
	}
}

// registerScript installs the assembled override script for every new document.
func registerScript(asm *Assembler, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(asm.Script()).Do(ctx); err != nil {
			logger.Error("Failed to register override script", zap.Error(err))
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

func setUserAgent(profile *fingerprint.Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(profile.UserAgent).
			WithPlatform(profile.Platform).
			WithAcceptLanguage(strings.Join(profile.Languages, ",")).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set user agent override", zap.Error(err))
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}
		return nil
	})
}

func setAcceptLanguage(profile *fingerprint.Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(profile.Languages) == 0 {
			return nil
		}
		formatted := profile.Languages[0]
		for i := 1; i < len(profile.Languages); i++ {
			q := 1.0 - float64(i)*0.1
			if q < 0.7 {
				q = 0.7
			}
			formatted += fmt.Sprintf(",%s;q=%.1f", profile.Languages[i], q)
		}
		headers := map[string]interface{}{"Accept-Language": formatted}
		if err := network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx); err != nil {
			logger.Error("Failed to set extra HTTP headers", zap.Error(err))
			return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(profile *fingerprint.Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if profile.ViewportWidth <= 0 || profile.ViewportHeight <= 0 {
			return nil
		}
		orientation := emulation.OrientationTypeLandscapePrimary
		if profile.ViewportHeight > profile.ViewportWidth {
			orientation = emulation.OrientationTypePortraitPrimary
		}
		mobile := profile.DeviceClass == fingerprint.DeviceMobile
		err := emulation.SetDeviceMetricsOverride(int64(profile.ViewportWidth), int64(profile.ViewportHeight), 1.0, mobile).
			WithScreenOrientation(&emulation.ScreenOrientation{Type: orientation, Angle: 0}).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set device metrics override", zap.Error(err))
			return fmt.Errorf("stealth: failed to set device metrics: %w", err)
		}
		return nil
	})
}

func setEnvironment(profile *fingerprint.Profile, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if profile.Timezone != "" {
			if err := emulation.SetTimezoneOverride(profile.Timezone).Do(ctx); err != nil {
				logger.Error("Failed to set timezone override", zap.Error(err))
				return fmt.Errorf("stealth: failed to set timezone: %w", err)
			}
		}
		if profile.Locale != "" {
			normalized := strings.ReplaceAll(profile.Locale, "_", "-")
			if err := emulation.SetLocaleOverride().WithLocale(normalized).Do(ctx); err != nil {
				logger.Error("Failed to set locale override", zap.Error(err))
				return fmt.Errorf("stealth: failed to set locale: %w", err)
			}
		}
		return nil
	})
}
