// Package profile supplies the ephemeral user-context block merged into
// each turn's outgoing conversation. Profile data is a collaborator of the
// session engine: it is read fresh every turn and never persisted into the
// stored conversation.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dayplan-ai/dayplan/internal/logging"
)

// Provider supplies the context block for a user. Implementations are
// read-only from the engine's point of view.
type Provider interface {
	Context(ctx context.Context, userID string) (string, error)
}

// WorkHours describes a user's working window.
type WorkHours struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Days  []string `json:"days"`
}

// EnergyPattern describes self-reported energy through the day.
type EnergyPattern struct {
	Morning   string `json:"morning"`
	Afternoon string `json:"afternoon"`
	Evening   string `json:"evening"`
}

// Profile is the stored per-user preference document.
type Profile struct {
	UserID        string         `json:"user_id"`
	WorkHours     *WorkHours     `json:"work_hours,omitempty"`
	EnergyPattern *EnergyPattern `json:"energy_pattern,omitempty"`
	TopPriorities []string       `json:"top_priorities,omitempty"`
	LongTermGoals []string       `json:"long_term_goals,omitempty"`
}

// DefaultProfile returns the profile written for a user seen for the first
// time.
func DefaultProfile(userID string) *Profile {
	return &Profile{
		UserID:    userID,
		WorkHours: &WorkHours{Start: "09:00", End: "17:00", Days: []string{"Mon", "Tue", "Wed", "Thu", "Fri"}},
	}
}

// FileProvider is a file-backed Provider storing one JSON document per
// user.
type FileProvider struct {
	dir string
	log zerolog.Logger
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string) (*FileProvider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profiles directory: %w", err)
	}
	return &FileProvider{dir: dir, log: logging.Logger}, nil
}

func (p *FileProvider) path(userID string) string {
	return filepath.Join(p.dir, userID+".json")
}

// Load reads the user's profile, creating a default one on first use. An
// unreadable profile degrades to the default rather than failing the turn.
func (p *FileProvider) Load(userID string) *Profile {
	data, err := os.ReadFile(p.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			prof := DefaultProfile(userID)
			p.save(prof)
			return prof
		}
		p.log.Error().Err(err).Str("user", userID).Msg("failed to read profile")
		return DefaultProfile(userID)
	}

	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		p.log.Error().Err(err).Str("user", userID).Msg("unreadable profile, using defaults")
		return DefaultProfile(userID)
	}
	return &prof
}

// Save persists the profile.
func (p *FileProvider) Save(prof *Profile) error {
	return p.save(prof)
}

func (p *FileProvider) save(prof *Profile) error {
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(p.path(prof.UserID), data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Context implements Provider, rendering the profile as a plain-text block
// for the completion service.
func (p *FileProvider) Context(_ context.Context, userID string) (string, error) {
	return Render(p.Load(userID)), nil
}

// Render formats a profile as the context block. An empty profile renders
// to an empty string, and the orchestrator skips the block entirely.
func Render(prof *Profile) string {
	if prof == nil {
		return ""
	}
	var parts []string
	if wh := prof.WorkHours; wh != nil && wh.Start != "" {
		parts = append(parts, fmt.Sprintf("Work Schedule: %s - %s on %s",
			wh.Start, wh.End, strings.Join(wh.Days, ", ")))
	}
	if ep := prof.EnergyPattern; ep != nil {
		parts = append(parts, fmt.Sprintf("Energy Levels: Morning (%s), Afternoon (%s), Evening (%s)",
			ep.Morning, ep.Afternoon, ep.Evening))
	}
	if len(prof.TopPriorities) > 0 {
		parts = append(parts, "Top Priorities: "+strings.Join(prof.TopPriorities, ", "))
	}
	if len(prof.LongTermGoals) > 0 {
		parts = append(parts, "Long-term Goals: "+strings.Join(prof.LongTermGoals, ", "))
	}
	return strings.Join(parts, "\n")
}
