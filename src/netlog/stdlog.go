package netlog

import (
	"log"
	"os"

	"github.com/go-logr/stdr"
)

// NewStderrRing returns a Ring_t of the given capacity logging
// through stdr's standard-library-backed logr.Logger, the convenient
// default for a boot-time netlog with no external log sink configured.
func NewStderrRing(capacity int) *Ring_t {
	std := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	return NewRing(capacity, stdr.New(std))
}
