// Package format renders selected memories as a scene memory block that can
// be injected into a prompt.
package format

import (
	"sort"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

const (
	DefaultCurrentSceneSize = 100
	DefaultLeadingUpSize    = 500
)

// Sizes are the widths, in messages, of the recent and mid windows measured
// back from the end of the conversation.
type Sizes struct {
	CurrentScene int `mapstructure:"current_scene_size" yaml:"current_scene_size"`
	LeadingUp    int `mapstructure:"leading_up_size" yaml:"leading_up_size"`
}

func DefaultSizes() Sizes {
	return Sizes{CurrentScene: DefaultCurrentSceneSize, LeadingUp: DefaultLeadingUpSize}
}

func (s Sizes) withDefaults() Sizes {
	if s.CurrentScene <= 0 {
		s.CurrentScene = DefaultCurrentSceneSize
	}
	if s.LeadingUp <= 0 {
		s.LeadingUp = DefaultLeadingUpSize
	}
	if s.LeadingUp < s.CurrentScene {
		s.LeadingUp = s.CurrentScene
	}
	return s
}

// Buckets partitions memories into temporal zones, each sorted by sequence.
type Buckets struct {
	Old    []model.Memory
	Mid    []model.Memory
	Recent []model.Memory
}

func (b Buckets) Len() int { return len(b.Old) + len(b.Mid) + len(b.Recent) }

// AssignBuckets places each memory by its display position:
// recent when position >= chatLength-CurrentScene, mid when
// position >= chatLength-LeadingUp, old otherwise. With chatLength 0
// everything is recent.
func AssignBuckets(memories []model.Memory, chatLength int, sizes Sizes) Buckets {
	sizes = sizes.withDefaults()
	var b Buckets
	if chatLength <= 0 {
		b.Recent = append(b.Recent, memories...)
		sortBySequence(b.Recent)
		return b
	}
	recentFrom := float64(chatLength - sizes.CurrentScene)
	midFrom := float64(chatLength - sizes.LeadingUp)
	for _, m := range memories {
		pos := m.DisplayPosition()
		switch {
		case pos >= recentFrom:
			b.Recent = append(b.Recent, m)
		case pos >= midFrom:
			b.Mid = append(b.Mid, m)
		default:
			b.Old = append(b.Old, m)
		}
	}
	sortBySequence(b.Old)
	sortBySequence(b.Mid)
	sortBySequence(b.Recent)
	return b
}

func sortBySequence(memories []model.Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Sequence < memories[j].Sequence
	})
}
