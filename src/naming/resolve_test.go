package naming

import (
	"context"
	"testing"

	"defs"
	"uid"
	"ustr"
)

func newResolverForTest() (*Resolver, uid.UID) {
	root := NewDir()
	r := NewResolver(root, nil)
	r.InitASID(1)
	target := uid.New(1)
	sub, _ := root.CrDir("node")
	sub.CrFile("thing", target)
	return r, target
}

func TestResolveAbsolutePath(t *testing.T) {
	r, target := newResolverForTest()
	got, err := r.Resolve(context.Background(), 1, ustr.Ustr("/node/thing"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != target {
		t.Fatalf("Resolve = %v, want %v", got, target)
	}
}

func TestResolveNameNotFound(t *testing.T) {
	r, _ := newResolverForTest()
	if _, err := r.Resolve(context.Background(), 1, ustr.Ustr("/node/missing")); err != defs.ENameNotFound {
		t.Fatalf("Resolve(missing) = %v, want ENameNotFound", err)
	}
}

func TestResolveUnknownASID(t *testing.T) {
	r, _ := newResolverForTest()
	if _, err := r.Resolve(context.Background(), 99, ustr.Ustr("/node/thing")); err != defs.EInvalidArg {
		t.Fatalf("Resolve(unknown asid) = %v, want EInvalidArg", err)
	}
}

func TestCrFileThenResolve(t *testing.T) {
	r, _ := newResolverForTest()
	obj := uid.New(2)
	if err := r.CrFile(1, ustr.Ustr("/node/new"), obj); err != nil {
		t.Fatalf("CrFile: %v", err)
	}
	got, err := r.Resolve(context.Background(), 1, ustr.Ustr("/node/new"))
	if err != nil {
		t.Fatalf("Resolve after CrFile: %v", err)
	}
	if got != obj {
		t.Fatalf("Resolve = %v, want %v", got, obj)
	}
}

func TestDropRemovesEntry(t *testing.T) {
	r, _ := newResolverForTest()
	if err := r.Drop(1, ustr.Ustr("/node/thing")); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := r.Resolve(context.Background(), 1, ustr.Ustr("/node/thing")); err != defs.ENameNotFound {
		t.Fatalf("Resolve after Drop = %v, want ENameNotFound", err)
	}
}

func TestForkInheritsDirectories(t *testing.T) {
	r, target := newResolverForTest()
	if err := r.Fork(1, 2); err != nil {
		t.Fatalf("Fork: %v", err)
	}
	got, err := r.Resolve(context.Background(), 2, ustr.Ustr("/node/thing"))
	if err != nil {
		t.Fatalf("Resolve in forked ASID: %v", err)
	}
	if got != target {
		t.Fatalf("Resolve = %v, want %v", got, target)
	}
}

func TestFreeASIDRemovesState(t *testing.T) {
	r, _ := newResolverForTest()
	r.FreeASID(1)
	if _, err := r.Resolve(context.Background(), 1, ustr.Ustr("/node/thing")); err != defs.EInvalidArg {
		t.Fatalf("Resolve after FreeASID = %v, want EInvalidArg", err)
	}
}

type fakeRemote struct {
	got  string
	path string
}

func (f *fakeRemote) ResolveRemote(ctx context.Context, node string, path ustr.Ustr) (uid.UID, error) {
	f.got = node
	f.path = path.String()
	return uid.New(7), nil
}

func TestResolveRemoteNodePath(t *testing.T) {
	root := NewDir()
	fr := &fakeRemote{}
	r := NewResolver(root, fr)
	r.InitASID(1)
	got, err := r.Resolve(context.Background(), 1, ustr.Ustr("//othernode/a/b"))
	if err != nil {
		t.Fatalf("Resolve(remote): %v", err)
	}
	if fr.got != "othernode" || fr.path != "/a/b" {
		t.Fatalf("remote got node=%q path=%q", fr.got, fr.path)
	}
	if got.IsNil() {
		t.Fatal("expected non-nil UID from remote resolve")
	}
}

func TestValidateRejectsEmptyAndTooLong(t *testing.T) {
	if MaxPathLen != 256 {
		t.Fatalf("MaxPathLen = %d, want 256", MaxPathLen)
	}
	if err := Validate(ustr.Ustr("")); err != defs.EInvalidPathname {
		t.Fatalf("Validate(empty) = %v, want EInvalidPathname", err)
	}
	long := make([]byte, MaxPathLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := Validate(ustr.Ustr(long)); err != defs.ENameTooLong {
		t.Fatalf("Validate(too long) = %v, want ENameTooLong", err)
	}
}

func TestClassifyPathKinds(t *testing.T) {
	cases := []struct {
		path string
		want PathClass
	}{
		{"/com/bar", Absolute},
		{"//othernode/a", Network},
		{"`node_data", NodeData},
		{"`node_data/foo", NodeData},
		{"rel/path", Relative},
	}
	for _, c := range cases {
		if got := Classify(ustr.Ustr(c.path)); got != c.want {
			t.Fatalf("Classify(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestResolveRejectsDotDot(t *testing.T) {
	root := NewDir()
	r := NewResolver(root, nil)
	r.InitASID(1)
	com, _ := root.CrDir("com")
	com.CrFile("bar", uid.New(5))
	if _, err := r.Resolve(context.Background(), 1, ustr.Ustr("/com/bar/../baz")); err != defs.EInvalidPathname {
		t.Fatalf("Resolve(../) = %v, want EInvalidPathname", err)
	}
}

func TestResolveIgnoresDotComponent(t *testing.T) {
	r, target := newResolverForTest()
	got, err := r.Resolve(context.Background(), 1, ustr.Ustr("/./node/./thing"))
	if err != nil {
		t.Fatalf("Resolve(with dot): %v", err)
	}
	if got != target {
		t.Fatalf("Resolve = %v, want %v", got, target)
	}
}

func TestResolveRootReturnsDirUID(t *testing.T) {
	root := NewDir()
	rootUID := uid.New(1)
	root.SetUID(rootUID)
	r := NewResolver(root, nil)
	r.InitASID(1)
	got, err := r.Resolve(context.Background(), 1, ustr.Ustr("/"))
	if err != nil {
		t.Fatalf("Resolve(/): %v", err)
	}
	if got != rootUID {
		t.Fatalf("Resolve(/) = %v, want %v", got, rootUID)
	}
}

func TestResolveNodeDataWalksConfiguredRoot(t *testing.T) {
	root := NewDir()
	r := NewResolver(root, nil)
	r.InitASID(1)

	ndata := NewDir()
	foo := uid.New(9)
	ndata.CrFile("foo", foo)
	r.SetNodeDataDir(ndata)

	got, err := r.Resolve(context.Background(), 1, ustr.Ustr("`node_data/foo"))
	if err != nil {
		t.Fatalf("Resolve(node_data): %v", err)
	}
	if got != foo {
		t.Fatalf("Resolve(node_data/foo) = %v, want %v", got, foo)
	}
}
