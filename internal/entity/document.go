package entity

import (
	"time"

	"github.com/joseph-ayodele/docparse/constants"
)

// Document is one input file loaded for parsing.
type Document struct {
	Path       string           `json:"path"`
	Name       string           `json:"name"`
	Ext        string           `json:"ext"`
	Family     constants.Family `json:"family"`
	Size       int64            `json:"size"`
	ModifiedAt time.Time        `json:"modified_at"`
	Pages      int              `json:"pages,omitempty"` // 0 when unknown (non-PDF)
	Content    []byte           `json:"-"`
}
