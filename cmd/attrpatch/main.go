// Command attrpatch patches one field of a serialized AOTE attribute
// block in place on disk — the attribute-block analogue of the
// teacher's chentry command, which patches an ELF header's Entry
// field in place without re-linking the binary. attrpatch lets an
// operator fix up a volume's on-disk metadata (e.g. correct a
// recorded length, clear a stuck trouble code) without bringing up
// the whole kernel.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"aot"
)

var fields = map[string]int{
	"length":       aot.FieldLength,
	"trouble":      aot.FieldTrouble,
	"modtime":      aot.FieldModTimeUnix,
	"dismount_seq": aot.FieldDismountSeq,
}

func fieldWidth(offset int) int {
	if offset == aot.FieldTrouble || offset == aot.FieldDismountSeq {
		return 4
	}
	return 8
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: attrpatch <attr-file> <field> <value>\n\nfields: length, trouble, modtime, dismount_seq\n")
	os.Exit(1)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) != 3 {
		usage()
	}
	path, fieldName, valStr := args[0], args[1], args[2]

	offset, ok := fields[fieldName]
	if !ok {
		fmt.Fprintf(os.Stderr, "attrpatch: unknown field %q\n", fieldName)
		os.Exit(1)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attrpatch: %v\n", err)
		os.Exit(1)
	}
	if len(data) < aot.AttrBlockSize {
		fmt.Fprintf(os.Stderr, "attrpatch: %s is %d bytes, want at least %d\n", path, len(data), aot.AttrBlockSize)
		os.Exit(1)
	}

	v, err := strconv.ParseUint(valStr, 0, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "attrpatch: invalid value %q: %v\n", valStr, err)
		os.Exit(1)
	}

	if fieldWidth(offset) == 4 {
		err = aot.PatchUint32(data, offset, uint32(v))
	} else {
		err = aot.PatchUint64(data, offset, v)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "attrpatch: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "attrpatch: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("attrpatch: set %s.%s = %d\n", path, fieldName, v)
}
