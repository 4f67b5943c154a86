package logo

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// LogoSource はロゴ候補の検出元を表す。
type LogoSource string

const (
	// LogoSourceOGImage はog:imageメタタグから検出された候補。
	LogoSourceOGImage LogoSource = "og-image"
	// LogoSourceAppleTouchIcon はapple-touch-iconリンクから検出された候補。
	LogoSourceAppleTouchIcon LogoSource = "apple-touch-icon"
	// LogoSourceIcon はiconリンク（favicon）から検出された候補。
	LogoSourceIcon LogoSource = "icon"
)

// LogoCandidate はHTMLから検出されたロゴ候補を表す。
type LogoCandidate struct {
	URL    string
	Source LogoSource
	// Sizes はlink要素のsizes属性の値（例: "180x180"）。なければ空。
	Sizes string
}

// ParseLogoCandidatesFromHTML はHTMLのheadタグからロゴ候補を解析・検出する。
// og:imageメタタグ、apple-touch-iconリンク、iconリンクを対象とする。
// 相対URLはbaseURLを基準に絶対URLに解決される。
func ParseLogoCandidatesFromHTML(htmlBody []byte, baseURL string) []LogoCandidate {
	var candidates []LogoCandidate

	baseU, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}

			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return candidates
			}

			if !inHead || !hasAttr {
				continue
			}

			switch tagName {
			case "meta":
				// og:imageメタタグの解析
				var property, content string
				for {
					key, val, more := tokenizer.TagAttr()
					switch strings.ToLower(string(key)) {
					case "property", "name":
						property = strings.ToLower(string(val))
					case "content":
						content = string(val)
					}
					if !more {
						break
					}
				}
				if property != "og:image" || content == "" {
					continue
				}
				resolved := resolveURL(baseU, content)
				if resolved == "" {
					continue
				}
				candidates = append(candidates, LogoCandidate{
					URL:    resolved,
					Source: LogoSourceOGImage,
				})

			case "link":
				// apple-touch-icon / iconリンクの解析
				var rel, href, sizes string
				for {
					key, val, more := tokenizer.TagAttr()
					switch strings.ToLower(string(key)) {
					case "rel":
						rel = strings.ToLower(string(val))
					case "href":
						href = string(val)
					case "sizes":
						sizes = strings.ToLower(string(val))
					}
					if !more {
						break
					}
				}
				if href == "" {
					continue
				}

				var source LogoSource
				switch {
				case strings.Contains(rel, "apple-touch-icon"):
					source = LogoSourceAppleTouchIcon
				case rel == "icon" || rel == "shortcut icon":
					source = LogoSourceIcon
				default:
					continue
				}

				resolved := resolveURL(baseU, href)
				if resolved == "" {
					continue
				}
				candidates = append(candidates, LogoCandidate{
					URL:    resolved,
					Source: source,
					Sizes:  sizes,
				})
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。
func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// SelectBestLogo は複数のロゴ候補から優先順位に従って最適な候補を選択する。
// 優先順位: og:image > apple-touch-icon > icon。
// 同一検出元の間ではsizes属性の大きいアイコンを優先する。
func SelectBestLogo(candidates []LogoCandidate) *LogoCandidate {
	if len(candidates) == 0 {
		return nil
	}

	// スコアリング: 検出元カテゴリ + サイズボーナス（カテゴリを跨がない上限付き）
	bestIdx := 0
	bestScore := -1

	for i, c := range candidates {
		score := 0

		switch c.Source {
		case LogoSourceOGImage:
			score += 100
		case LogoSourceAppleTouchIcon:
			score += 50
		case LogoSourceIcon:
			score += 10
		}

		sizeBonus := parseSizeBonus(c.Sizes)
		if sizeBonus > 39 {
			sizeBonus = 39
		}
		score += sizeBonus

		// 同スコアの場合はインデックスが小さい方を優先する
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return &candidates[bestIdx]
}

// parseSizeBonus はsizes属性（"180x180"形式）から優先度ボーナスを算出する。
// 解析できない場合は0を返す。
func parseSizeBonus(sizes string) int {
	if sizes == "" || sizes == "any" {
		return 0
	}

	// 複数指定（"32x32 64x64"）の場合は最大値をとる
	max := 0
	for _, s := range strings.Fields(sizes) {
		parts := strings.SplitN(s, "x", 2)
		if len(parts) != 2 {
			continue
		}
		w, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		if w > max {
			max = w
		}
	}

	// 16px刻みでボーナス化（180x180 → 11）
	return max / 16
}
