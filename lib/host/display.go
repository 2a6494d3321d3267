package host

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Display is a screen the host can put a presentation on.
type Display struct {
	ID      int    `yaml:"id"`
	Name    string `yaml:"name"`
	Primary bool   `yaml:"primary"`
	Invalid bool   `yaml:"invalid"`
}

func (d Display) Valid() bool {
	return !d.Invalid
}

type displayFile struct {
	Displays []Display `yaml:"displays"`
}

// LoadDisplays reads a YAML display fixture:
//
//	displays:
//	  - id: 1
//	    name: HDMI
func LoadDisplays(path string) ([]Display, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read displays file: %w", err)
	}
	return ParseDisplays(data)
}

func ParseDisplays(data []byte) ([]Display, error) {
	var file displayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse displays: %w", err)
	}

	seen := make(map[int]bool, len(file.Displays))
	for _, d := range file.Displays {
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate display id %d", d.ID)
		}
		seen[d.ID] = true
	}
	return file.Displays, nil
}

// DisplayObserver is told about secondary displays coming and going.
type DisplayObserver interface {
	DisplayAdded(d Display, count int)
	DisplayRemoved(d Display, count int)
}

// DisplayManager keeps the ordered set of secondary displays. The first
// display is the preferred presentation target.
type DisplayManager struct {
	mu         sync.RWMutex
	displays   []Display
	observers  []DisplayObserver
	usePrimary bool
}

// NewDisplayManager returns an empty manager. The primary display is only
// accepted when usePrimary is set.
func NewDisplayManager(usePrimary bool) *DisplayManager {
	return &DisplayManager{usePrimary: usePrimary}
}

// AddDisplay adds d and reports whether the set changed.
func (m *DisplayManager) AddDisplay(d Display) bool {
	m.mu.Lock()
	if d.Primary && !m.usePrimary {
		m.mu.Unlock()
		return false
	}
	if m.indexLocked(d.ID) >= 0 {
		m.mu.Unlock()
		return false
	}
	m.displays = append(m.displays, d)
	count := len(m.displays)
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	for _, o := range observers {
		o.DisplayAdded(d, count)
	}
	return true
}

// RemoveDisplay removes the display with the given id and reports whether
// it was present.
func (m *DisplayManager) RemoveDisplay(id int) bool {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return false
	}
	d := m.displays[i]
	m.displays = slices.Delete(m.displays, i, i+1)
	count := len(m.displays)
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	for _, o := range observers {
		o.DisplayRemoved(d, count)
	}
	return true
}

// SetValid marks a display as usable or not without removing it.
func (m *DisplayManager) SetValid(id int, valid bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return false
	}
	m.displays[i].Invalid = !valid
	return true
}

func (m *DisplayManager) Displays() []Display {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.displays)
}

// Preferred returns the first display, if any.
func (m *DisplayManager) Preferred() (Display, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.displays) == 0 {
		return Display{}, false
	}
	return m.displays[0], true
}

func (m *DisplayManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.displays)
}

func (m *DisplayManager) AddObserver(o DisplayObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *DisplayManager) RemoveObserver(o DisplayObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.Index(m.observers, o); i >= 0 {
		m.observers = slices.Delete(m.observers, i, i+1)
	}
}

func (m *DisplayManager) indexLocked(id int) int {
	return slices.IndexFunc(m.displays, func(d Display) bool { return d.ID == id })
}
