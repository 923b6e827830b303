// Package tags turns tag group applications into a copyable list of
// social media handles or profile links.
package tags

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/jghoshh/missioncenter/models"
)

// RandomSampleSize is the number of applicants picked in random mode.
const RandomSampleSize = 10

const (
	youtubeBaseURL = "https://www.youtube.com/"
	naverBaseURL   = "https://blog.naver.com/"
	ohouseBaseURL  = "https://ohou.se/users/"
)

// Handle returns the applicant's handle for the platform. Instagram groups
// created before per-platform accounts existed only carry UserInstagram.
func Handle(app models.TagGroupApplication, platform models.SnsType) string {
	handle := strings.TrimSpace(app.UserSnsAccount)
	if handle == "" && platform == models.SnsInstagram {
		handle = strings.TrimSpace(app.UserInstagram)
	}
	return handle
}

// Format renders one handle the way the platform expects it to be pasted.
func Format(platform models.SnsType, handle string) string {
	switch platform {
	case models.SnsInstagram:
		return "@" + strings.TrimLeft(handle, "@")
	case models.SnsYoutube:
		return youtubeBaseURL + "@" + strings.TrimLeft(handle, "@")
	case models.SnsNaver:
		return naverBaseURL + handle
	case models.SnsOhouse:
		return ohouseBaseURL + handle
	}
	return handle
}

// Separator is placed between formatted entries.
func Separator(platform models.SnsType) string {
	if platform == models.SnsInstagram {
		return " "
	}
	return "\n"
}

// Generate formats every application with a non-empty handle, in order.
func Generate(apps []models.TagGroupApplication, platform models.SnsType) string {
	parts := make([]string, 0, len(apps))
	for _, app := range apps {
		handle := Handle(app, platform)
		if handle == "" {
			continue
		}
		parts = append(parts, Format(platform, handle))
	}
	return strings.Join(parts, Separator(platform))
}

// Sampler picks random subsets of applications.
type Sampler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSampler returns a sampler drawing from src. A nil src uses the
// package-level generator, which is not reproducible between runs.
func NewSampler(src rand.Source) *Sampler {
	s := &Sampler{}
	if src != nil {
		s.rnd = rand.New(src)
	}
	return s
}

func (s *Sampler) shuffle(n int, swap func(i, j int)) {
	if s.rnd == nil {
		rand.Shuffle(n, swap)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(n, swap)
}

// Sample returns min(n, len(apps)) distinct applications drawn uniformly.
// The input slice is left untouched.
func (s *Sampler) Sample(apps []models.TagGroupApplication, n int) []models.TagGroupApplication {
	if n <= 0 {
		return nil
	}
	pool := make([]models.TagGroupApplication, len(apps))
	copy(pool, apps)
	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

// GenerateRandom formats a random sample of RandomSampleSize applications.
func (s *Sampler) GenerateRandom(apps []models.TagGroupApplication, platform models.SnsType) string {
	return Generate(s.Sample(apps, RandomSampleSize), platform)
}
