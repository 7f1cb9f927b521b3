package reader

import (
	"bytes"
	"hash"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/ioutil"
	"github.com/indrora/darn/darn/transform"
)

// payload is the stored content following a file entry.
type payload struct {
	entry  *catalog.File
	packed *io.LimitedReader
	body   io.ReadCloser
}

func newPayload(f *catalog.File, r io.Reader, size uint64) *payload {
	return &payload{
		entry:  f,
		packed: &io.LimitedReader{R: r, N: int64(size)},
	}
}

func (p *payload) open() (io.ReadCloser, error) {
	if p.body != nil {
		return nil, ErrBodyOpened
	}
	dec, err := transform.NewDecompressor(p.entry.Compression, p.packed)
	if err != nil {
		return nil, err
	}
	hash, err := blake2b.New256(nil)
	if err != nil {
		dec.Close()
		return nil, errors.Wrap(err, "failed to initialize BLAKE2b hash")
	}
	p.body = &verifier{r: dec, hash: hash, want: p.entry.Checksum[:]}
	return p.body, nil
}

// discard drops whatever of the payload was not read.
func (p *payload) discard() error {
	if p.body != nil {
		p.body.Close()
	}
	if cr, ok := p.packed.R.(*ioutil.CountingReader); ok {
		n := uint64(p.packed.N)
		p.packed.N = 0
		if err := cr.Discard(n); err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		return nil
	}
	if _, err := io.Copy(io.Discard, p.packed); err != nil {
		return err
	}
	if p.packed.N > 0 {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// verifier checks the content hash once the content is exhausted.
type verifier struct {
	r    io.ReadCloser
	hash hash.Hash
	want []byte
}

func (v *verifier) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	v.hash.Write(p[:n])
	if err == io.EOF && !bytes.Equal(v.hash.Sum(nil), v.want) {
		return n, ErrMalformedHash
	}
	return n, err
}

func (v *verifier) Close() error {
	return v.r.Close()
}
