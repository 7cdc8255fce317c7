package naming

import (
	"sort"
	"testing"

	"uid"
)

func TestDirWalkVisitsAllLeavesWithFullPaths(t *testing.T) {
	root := NewDir()
	a := uid.New(1)
	b := uid.New(2)
	c := uid.New(3)

	root.CrFile("top", a)
	node, err := root.CrDir("node")
	if err != nil {
		t.Fatalf("CrDir: %v", err)
	}
	node.CrFile("thing", b)
	sub, err := node.CrDir("deeper")
	if err != nil {
		t.Fatalf("CrDir: %v", err)
	}
	sub.CrFile("leaf", c)

	got := make(map[string]uid.UID)
	root.Walk("", func(path string, u uid.UID) {
		got[path] = u
	})

	want := map[string]uid.UID{
		"/top":              a,
		"/node/thing":       b,
		"/node/deeper/leaf": c,
	}
	if len(got) != len(want) {
		var keys []string
		for k := range got {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t.Fatalf("Walk visited %v, want %v", keys, want)
	}
	for path, u := range want {
		if got[path] != u {
			t.Fatalf("Walk[%q] = %v, want %v", path, got[path], u)
		}
	}
}
