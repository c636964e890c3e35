// Package langdetect 提供尽力而为的 ISO 639-1 语言识别。
//
// 识别失败不会返回错误，而是降级为 Und。
package langdetect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kart-io/logger"
	"github.com/pemistahl/lingua-go"
)

// Und 无法确定语言时返回的代码。
const Und = "und"

// DefaultThreshold 候选语言被接受的最低置信度。
const DefaultThreshold = 0.75

var isoCode = regexp.MustCompile(`^[a-z]{2}$`)

// Candidate 候选语言及其置信度。
type Candidate struct {
	Code       string
	Confidence float64
}

// Primary 单一结果的语言识别。
type Primary interface {
	Detect(text string) (string, error)
}

// Ranked 按置信度降序返回候选语言。
type Ranked interface {
	DetectRanked(text string) ([]Candidate, error)
}

// Detector 组合主识别器与候选识别器。
type Detector struct {
	primary   Primary
	ranked    Ranked
	threshold float64
}

// Option 配置 Detector。
type Option func(*Detector)

// WithThreshold 设置候选语言的最低置信度。
func WithThreshold(v float64) Option {
	return func(d *Detector) {
		d.threshold = v
	}
}

// New 使用给定的识别后端创建 Detector。
func New(primary Primary, ranked Ranked, opts ...Option) *Detector {
	d := &Detector{
		primary:   primary,
		ranked:    ranked,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDefault 创建基于 lingua 的识别器，覆盖 lingua 支持的全部语言。
func NewDefault(opts ...Option) *Detector {
	backend := NewLingua()
	return New(backend, backend, opts...)
}

// Detect 返回小写的两字母语言代码，无法确定时返回 Und。
func (d *Detector) Detect(text string) (code string) {
	if strings.TrimSpace(text) == "" {
		return Und
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("language detector panicked", "panic", r)
			code = Und
		}
	}()

	if d.primary != nil {
		c, err := d.primary.Detect(text)
		c = strings.ToLower(strings.TrimSpace(c))
		if err == nil && isoCode.MatchString(c) {
			return c
		}
		logger.Debugw("primary language detection failed, trying ranked candidates", "code", c, "error", err)
	}

	if d.ranked == nil {
		return Und
	}

	candidates, err := d.ranked.DetectRanked(text)
	if err != nil || len(candidates) == 0 {
		return Und
	}

	top := candidates[0]
	c := strings.ToLower(strings.TrimSpace(top.Code))
	if top.Confidence >= d.threshold && isoCode.MatchString(c) {
		return c
	}
	return Und
}

// ErrUnknownLanguage lingua 无法给出可靠结果。
var ErrUnknownLanguage = errors.New("language could not be determined")

// Lingua 基于 lingua-go 的识别后端，同时实现 Primary 与 Ranked。
type Lingua struct {
	detector lingua.LanguageDetector
}

// NewLingua 创建覆盖全部语言的 lingua 后端。
func NewLingua() *Lingua {
	return &Lingua{
		detector: lingua.NewLanguageDetectorBuilder().FromAllLanguages().Build(),
	}
}

// NewLinguaFor 创建只识别指定语言的 lingua 后端。
func NewLinguaFor(languages ...lingua.Language) *Lingua {
	return &Lingua{
		detector: lingua.NewLanguageDetectorBuilder().FromLanguages(languages...).Build(),
	}
}

func (l *Lingua) Detect(text string) (string, error) {
	lang, ok := l.detector.DetectLanguageOf(text)
	if !ok {
		return "", ErrUnknownLanguage
	}
	return isoString(lang)
}

func (l *Lingua) DetectRanked(text string) ([]Candidate, error) {
	values := l.detector.ComputeLanguageConfidenceValues(text)
	out := make([]Candidate, 0, len(values))
	for _, v := range values {
		code, err := isoString(v.Language())
		if err != nil {
			continue
		}
		out = append(out, Candidate{Code: code, Confidence: v.Value()})
	}
	return out, nil
}

func isoString(lang lingua.Language) (string, error) {
	if lang == lingua.Unknown {
		return "", ErrUnknownLanguage
	}
	code := strings.ToLower(lang.IsoCode639_1().String())
	if code == "" {
		return "", fmt.Errorf("no iso 639-1 code for %s", lang)
	}
	return code, nil
}
