// Package research builds short background briefs on captured leads using
// search-grounded generation.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RichardoC/leadline/internal/config"
	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/models"
)

// ErrDisabled is returned when no Gemini key is configured.
var ErrDisabled = errors.New("lead research is not configured")

type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Result is one grounded answer.
type Result struct {
	Text    string
	Sources []Source
	Queries []string
}

// Grounder answers a prompt with web search grounding.
type Grounder interface {
	Ground(ctx context.Context, prompt string) (*Result, error)
}

type Brief struct {
	Summary string   `json:"summary"`
	Sources []Source `json:"sources"`
	Queries []string `json:"queries"`
}

// Store is what research needs to persist its result.
type Store interface {
	UpdateLead(ctx context.Context, id string, patch *models.LeadPatch) (*models.Lead, error)
	LogActivity(ctx context.Context, kind models.ActivityKind, subjectID, detail string) error
}

type Service struct {
	grounder Grounder
	store    Store
	logger   *zap.Logger
}

// New returns a disabled service when no API key is configured.
func New(ctx context.Context, cfg config.ResearchConfig, store Store, logger *zap.Logger) (*Service, error) {
	if cfg.GeminiAPIKey == "" {
		return &Service{store: store, logger: logger}, nil
	}
	g, err := newGeminiGrounder(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return NewWithGrounder(g, store, logger), nil
}

func NewWithGrounder(g Grounder, store Store, logger *zap.Logger) *Service {
	return &Service{grounder: g, store: store, logger: logger}
}

func (s *Service) Enabled() bool {
	return s != nil && s.grounder != nil
}

// Research asks about the person and, when known, the company in parallel
// and merges the answers.
func (s *Service) Research(ctx context.Context, lead *models.Lead) (*Brief, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	prompts := []string{personPrompt(lead)}
	if company := companyOf(lead); company != "" {
		prompts = append(prompts, companyPrompt(company))
	}

	results := make([]*Result, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range prompts {
		i, p := i, p
		g.Go(func() error {
			r, err := s.grounder.Ground(gctx, p)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to research lead %s: %w", lead.ID, err)
	}
	return merge(results), nil
}

// ResearchLead researches lead and stores the brief on it.
func (s *Service) ResearchLead(ctx context.Context, lead *models.Lead) (*Brief, *models.Lead, error) {
	brief, err := s.Research(ctx, lead)
	if err != nil {
		return nil, nil, err
	}

	summary := brief.Render()
	updated, err := s.store.UpdateLead(ctx, lead.ID, &models.LeadPatch{ResearchSummary: &summary})
	if err != nil {
		return nil, nil, err
	}
	detail := fmt.Sprintf("%d sources", len(brief.Sources))
	if err := s.store.LogActivity(ctx, models.ActivityResearchCompleted, lead.ID, detail); err != nil {
		s.logger.Warn("failed to log research activity", zap.String("lead_id", lead.ID), zap.Error(err))
	}
	s.logger.Info("lead researched",
		zap.String("lead_id", lead.ID),
		zap.Int("sources", len(brief.Sources)),
		zap.Int("queries", len(brief.Queries)))
	return brief, updated, nil
}

// Render formats the brief for the lead's research_summary column.
func (b *Brief) Render() string {
	var sb strings.Builder
	sb.WriteString(b.Summary)
	if len(b.Sources) > 0 {
		sb.WriteString("\n\nSources:")
		for _, src := range b.Sources {
			title := src.Title
			if title == "" {
				title = src.URI
			}
			fmt.Fprintf(&sb, "\n- %s (%s)", title, src.URI)
		}
	}
	return sb.String()
}

func merge(results []*Result) *Brief {
	brief := &Brief{Sources: []Source{}, Queries: []string{}}
	var parts []string
	seenURI := map[string]bool{}
	seenQuery := map[string]bool{}
	for _, r := range results {
		if r == nil {
			continue
		}
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
		for _, src := range r.Sources {
			if seenURI[src.URI] {
				continue
			}
			seenURI[src.URI] = true
			brief.Sources = append(brief.Sources, src)
		}
		for _, q := range r.Queries {
			if seenQuery[q] {
				continue
			}
			seenQuery[q] = true
			brief.Queries = append(brief.Queries, q)
		}
	}
	brief.Summary = strings.Join(parts, "\n\n")
	return brief
}

// companyOf falls back to the email domain for business addresses.
func companyOf(lead *models.Lead) string {
	if lead.Company != "" {
		return lead.Company
	}
	if !intelligence.BusinessEmail(lead.Email) {
		return ""
	}
	return lead.Email[strings.LastIndexByte(lead.Email, '@')+1:]
}

func personPrompt(lead *models.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Find public professional information about %s", lead.Name)
	if c := companyOf(lead); c != "" {
		fmt.Fprintf(&b, " who works at %s", c)
	}
	if lead.Role != "" {
		fmt.Fprintf(&b, " as %s", lead.Role)
	}
	b.WriteString(". Summarize their current role and responsibilities in at most three sentences. " +
		"If you cannot find a confident match, say so instead of guessing.")
	return b.String()
}

func companyPrompt(company string) string {
	return fmt.Sprintf("Give a brief profile of the company %s: what it does, its size and industry, "+
		"and any recent news about AI or automation initiatives. At most four sentences.", company)
}
