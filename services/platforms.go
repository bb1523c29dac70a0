package services

import (
	"log"
	"regexp"
	"strings"
)

// PlatformType представляет тип платформы
type PlatformType string

const (
	PlatformYouTube PlatformType = "youtube"
	PlatformTikTok  PlatformType = "tiktok"
	PlatformRuTube  PlatformType = "rutube"
	PlatformVK      PlatformType = "vkontakte"
	PlatformUnknown PlatformType = "unknown"
)

// PlatformInfo содержит информацию о распознанной ссылке
type PlatformInfo struct {
	Type        PlatformType
	VideoID     string
	DisplayName string
	Icon        string
	Supported   bool
}

type platformPattern struct {
	platform PlatformType
	re       *regexp.Regexp
}

// PlatformDetector определяет платформу и ID видео по URL.
// Порядок шаблонов фиксирован: первый совпавший выигрывает.
type PlatformDetector struct {
	patterns []platformPattern
}

// NewPlatformDetector создает новый детектор платформ
func NewPlatformDetector() *PlatformDetector {
	build := func(platform PlatformType, exprs ...string) []platformPattern {
		pp := make([]platformPattern, 0, len(exprs))
		for _, expr := range exprs {
			pp = append(pp, platformPattern{platform: platform, re: regexp.MustCompile(expr)})
		}
		return pp
	}

	var patterns []platformPattern
	patterns = append(patterns, build(PlatformYouTube,
		`(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]+)`,
		`(?:https?://)?(?:www\.)?youtu\.be/([a-zA-Z0-9_-]+)`,
		`(?:https?://)?(?:www\.)?youtube\.com/embed/([a-zA-Z0-9_-]+)`,
		`(?:https?://)?(?:www\.)?youtube\.com/v/([a-zA-Z0-9_-]+)`,
		`(?:https?://)?(?:www\.)?youtube\.com/shorts/([a-zA-Z0-9_-]+)`,
	)...)
	patterns = append(patterns, build(PlatformTikTok,
		`(?:https?://)?(?:www\.|vm\.|vt\.)?tiktok\.com/@[^/]+/video/(\d+)`,
		`(?:https?://)?(?:vm\.|vt\.)?tiktok\.com/([A-Za-z0-9]+)`,
		`(?:https?://)?(?:www\.)?tiktok\.com/t/([a-zA-Z0-9]+)/`,
		`(?:https?://)?m\.tiktok\.com/v/(\d+)\.html`,
	)...)
	patterns = append(patterns, build(PlatformRuTube,
		`(?:https?://)?(?:www\.)?rutube\.ru/video/([a-f0-9]+)/?`,
		`(?:https?://)?(?:www\.)?rutube\.ru/shorts/([a-f0-9]+)/?`,
		`(?:https?://)?(?:www\.)?rutube\.ru/video/([a-f0-9]+)\?`,
		`(?:https?://)?(?:www\.)?rutube\.ru/shorts/([a-f0-9]+)\?`,
	)...)
	patterns = append(patterns, build(PlatformVK,
		`(?:https?://)?(?:www\.)?vk\.com/video(-?\d+_\d+)`,
		`(?:https?://)?(?:www\.)?vk\.com/vkvideo\?z=video(-?\d+_\d+)`,
		`(?:https?://)?(?:www\.)?vk\.com/clip(-?\d+_\d+)`,
		`(?:https?://)?(?:www\.)?vk\.com/shvideo\?.*?z=clip(-?\d+_\d+)`,
		`(?:https?://)?(?:www\.)?vk\.com/search/video\?.*?z=video(-?\d+_\d+)`,
		`(?:https?://)?(?:www\.)?vkvideo\.ru/video(-?\d+_\d+)`,
		`(?:https?://)?(?:www\.)?vkvideo\.ru/playlist/[^/]+/video(-?\d+_\d+)`,
	)...)

	return &PlatformDetector{patterns: patterns}
}

// DetectPlatform определяет платформу по URL
func (pd *PlatformDetector) DetectPlatform(url string) *PlatformInfo {
	url = strings.TrimSpace(url)

	for _, p := range pd.patterns {
		matches := p.re.FindStringSubmatch(url)
		if len(matches) > 1 && matches[1] != "" {
			return &PlatformInfo{
				Type:        p.platform,
				VideoID:     matches[1],
				DisplayName: pd.getDisplayName(p.platform),
				Icon:        pd.getIcon(p.platform),
				Supported:   true,
			}
		}
	}

	return &PlatformInfo{
		Type:        PlatformUnknown,
		VideoID:     "",
		DisplayName: "Неизвестная платформа",
		Icon:        "❓",
		Supported:   false,
	}
}

// Resolve возвращает ID видео и платформу, ok=false если URL не распознан
func (pd *PlatformDetector) Resolve(url string) (videoID string, platform PlatformType, ok bool) {
	info := pd.DetectPlatform(url)
	if !info.Supported {
		return "", PlatformUnknown, false
	}
	return info.VideoID, info.Type, true
}

// IsValidURL проверяет, является ли URL валидным для любой поддерживаемой платформы
func (pd *PlatformDetector) IsValidURL(url string) bool {
	info := pd.DetectPlatform(url)
	return info.Supported && info.VideoID != ""
}

// getDisplayName возвращает отображаемое имя платформы
func (pd *PlatformDetector) getDisplayName(platformType PlatformType) string {
	names := map[PlatformType]string{
		PlatformYouTube: "YouTube",
		PlatformTikTok:  "TikTok",
		PlatformRuTube:  "RuTube",
		PlatformVK:      "VKontakte",
		PlatformUnknown: "Неизвестная платформа",
	}
	return names[platformType]
}

// getIcon возвращает иконку платформы
func (pd *PlatformDetector) getIcon(platformType PlatformType) string {
	icons := map[PlatformType]string{
		PlatformYouTube: "🎬",
		PlatformTikTok:  "🎵",
		PlatformRuTube:  "📺",
		PlatformVK:      "🔵",
		PlatformUnknown: "❓",
	}
	return icons[platformType]
}

// LogPlatformInfo логирует информацию о распознанной ссылке
func (pd *PlatformDetector) LogPlatformInfo(info *PlatformInfo, url string) {
	log.Printf("🔍 Обнаружена платформа: %s %s", info.Icon, info.DisplayName)
	log.Printf("   URL: %s", url)
	log.Printf("   Video ID: %s", info.VideoID)
}
