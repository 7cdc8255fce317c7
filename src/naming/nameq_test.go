package naming

import (
	"context"
	"testing"
	"time"

	"uid"
	"ustr"
)

func TestNameQResolvesQueuedRequest(t *testing.T) {
	root := NewDir()
	r := NewResolver(root, nil)
	r.InitASID(1)
	target := uid.New(3)
	root.CrFile("f", target)

	q := NewNameQ(r, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Run(ctx, 2)

	reply, err := q.Submit(ctx, Request{ASID: 1, Path: ustr.Ustr("/f")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case ans := <-reply:
		if ans.Err != nil {
			t.Fatalf("Answer.Err = %v", ans.Err)
		}
		if ans.UID != target {
			t.Fatalf("Answer.UID = %v, want %v", ans.UID, target)
		}
	case <-time.After(time.Second):
		t.Fatal("NameQ never answered")
	}
}
