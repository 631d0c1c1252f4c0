package sounds

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrUnknownSound is returned when a sound id is not in the catalog.
var ErrUnknownSound = errors.New("unknown sound id")

// Sound is a single playable catalog entry.
type Sound struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Artist string   `json:"artist"`
	URL    string   `json:"url"`
	Tags   []string `json:"tags,omitempty"`
}

// Catalog is the static sound catalog, loaded once at startup.
type Catalog struct {
	sounds []Sound
	byID   map[string]int
}

// LoadCatalog reads the catalog from a JSON file holding an array of sounds.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sound catalog: %w", err)
	}
	var list []Sound
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse sound catalog: %w", err)
	}
	return NewCatalog(list)
}

// NewCatalog builds a catalog from an in-memory list.
func NewCatalog(list []Sound) (*Catalog, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("sound catalog is empty")
	}
	byID := make(map[string]int, len(list))
	for i, s := range list {
		if s.ID == "" {
			return nil, fmt.Errorf("sound catalog entry %d has no id", i)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sound id %q", s.ID)
		}
		byID[s.ID] = i
	}
	return &Catalog{sounds: list, byID: byID}, nil
}

// All returns the catalog entries in file order.
func (c *Catalog) All() []Sound {
	out := make([]Sound, len(c.sounds))
	copy(out, c.sounds)
	return out
}

// Get returns the sound with the given id, or ErrUnknownSound.
func (c *Catalog) Get(id string) (*Sound, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, ErrUnknownSound
	}
	s := c.sounds[i]
	return &s, nil
}

// Len returns the catalog size.
func (c *Catalog) Len() int { return len(c.sounds) }

// DefaultFor picks a stable per-user default sound. The same chat identity
// always hears the same sound even before its account picks one, so the
// choice hashes the id instead of randomizing.
func (c *Catalog) DefaultFor(providerUserID string) *Sound {
	sum := sha256.Sum256([]byte(providerUserID))
	idx := binary.BigEndian.Uint32(sum[:4]) % uint32(len(c.sounds))
	s := c.sounds[idx]
	return &s
}
