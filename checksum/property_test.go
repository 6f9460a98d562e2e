package checksum

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func subset(mask int) []Algorithm {
	var algs []Algorithm
	for i, alg := range Algorithms() {
		if mask&(1<<i) != 0 {
			algs = append(algs, alg)
		}
	}
	return algs
}

func TestFixedChecksumsValidateProperty(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	n := 0

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("fix then validate succeeds and a second fix changes nothing", prop.ForAll(
		func(content []byte, mask int) bool {
			n++
			key := fmt.Sprintf("prop/%d/file-%d.bin", n, n)
			if err := storage.Write(ctx, key, bytes.NewReader(content)); err != nil {
				return false
			}
			algs := subset(mask)
			f := NewFile(storage, key)

			if _, err := f.FixChecksums(ctx, algs); err != nil {
				return false
			}
			valid, err := f.IsValidChecksums(ctx, algs, true)
			if err != nil || !valid {
				return false
			}
			list, err := f.FixChecksums(ctx, algs)
			return err == nil && list.Total() == StatusNone
		},
		gen.SliceOf(gen.UInt8()),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}

func TestParserRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("GNU and BSD renderings parse back", prop.ForAll(
		func(content []byte, name string, mask int) bool {
			for _, alg := range subset(mask) {
				c := New(alg)
				_, _ = c.Write(content)
				digest := c.Hex()

				gnu := ParseContent(alg, FormatGNU(digest, name))
				if gnu != (FileContent{Checksum: digest, FileReference: name, Format: GNUFormat}) {
					return false
				}
				bsd := ParseContent(alg, FormatBSD(alg, digest, name))
				if bsd != (FileContent{Checksum: digest, FileReference: name, Format: BSDFormat}) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8()),
		gen.Identifier(),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}

func TestSinglePassProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("one pass over the input equals independent digests", prop.ForAll(
		func(content []byte) bool {
			sums := NewAll(Algorithms())
			if _, err := UpdateAll(sums, bytes.NewReader(content)); err != nil {
				return false
			}
			for _, s := range sums {
				h := s.Algorithm().New()
				_, _ = h.Write(content)
				if hex.EncodeToString(h.Sum(nil)) != s.Hex() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
