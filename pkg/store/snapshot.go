// pkg/store/snapshot.go

package store

import (
    "bufio"
    "encoding/binary"
    "encoding/json"
    "hash"
    "hash/crc32"
    "io"
    "time"

    "AveWorld/pkg/chunk"
    "AveWorld/pkg/version"

    "github.com/google/uuid"
    "github.com/pkg/errors"
)

// Snapshot layout:
//
//	magic "AVWC" | u16 version | u32 header length | header (JSON)
//	entries x (x, y, z varint | record length uvarint | record)
//	u32 CRC-32 (IEEE) of everything above
const (
    snapshotMagic   = "AVWC"
    snapshotVersion = 1
    maxHeaderSize   = 1 << 20
)

var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Header describes a snapshot.
type Header struct {
    ID          string    `json:"id"`
    Created     time.Time `json:"created"`
    Store       string    `json:"store"`
    Compression string    `json:"compression"`
    Entries     int64     `json:"entries"`
    Writer      string    `json:"writer"`
}

func newHeader(store, compression string, entries int) *Header {
    return &Header{
        ID:          uuid.New().String(),
        Created:     time.Now().UTC(),
        Store:       store,
        Compression: compression,
        Entries:     int64(entries),
        Writer:      version.Writer(),
    }
}

type snapshotWriter struct {
    w       *bufio.Writer
    crc     hash.Hash32
    out     io.Writer
    left    int64
    scratch [3*binary.MaxVarintLen32 + binary.MaxVarintLen64]byte
}

func newSnapshotWriter(w io.Writer, hdr *Header) (*snapshotWriter, error) {
    body, err := json.Marshal(hdr)
    if err != nil {
        return nil, errors.Wrap(err, "encode snapshot header")
    }
    bw := bufio.NewWriterSize(w, 64<<10)
    sw := &snapshotWriter{w: bw, crc: crc32.NewIEEE(), left: hdr.Entries}
    sw.out = io.MultiWriter(bw, sw.crc)

    var pre [10]byte
    copy(pre[:4], snapshotMagic)
    binary.BigEndian.PutUint16(pre[4:6], snapshotVersion)
    binary.BigEndian.PutUint32(pre[6:10], uint32(len(body)))
    if _, err = sw.out.Write(pre[:]); err != nil {
        return nil, err
    }
    if _, err = sw.out.Write(body); err != nil {
        return nil, err
    }
    return sw, nil
}

func (s *snapshotWriter) add(pos chunk.Coord, rec []byte) error {
    if s.left <= 0 {
        return errors.New("more snapshot entries than announced")
    }
    s.left--
    b := s.scratch[:0]
    b = binary.AppendVarint(b, int64(pos.X))
    b = binary.AppendVarint(b, int64(pos.Y))
    b = binary.AppendVarint(b, int64(pos.Z))
    b = binary.AppendUvarint(b, uint64(len(rec)))
    if _, err := s.out.Write(b); err != nil {
        return err
    }
    _, err := s.out.Write(rec)
    return err
}

func (s *snapshotWriter) finish() error {
    if s.left != 0 {
        return errors.Errorf("snapshot is missing %d entries", s.left)
    }
    var sum [4]byte
    binary.BigEndian.PutUint32(sum[:], s.crc.Sum32())
    if _, err := s.w.Write(sum[:]); err != nil {
        return err
    }
    return s.w.Flush()
}

// crcReader checksums everything read through it.
type crcReader struct {
    r   *bufio.Reader
    crc hash.Hash32
}

func (c *crcReader) Read(p []byte) (int, error) {
    n, err := c.r.Read(p)
    c.crc.Write(p[:n])
    return n, err
}

func (c *crcReader) ReadByte() (byte, error) {
    b, err := c.r.ReadByte()
    if err == nil {
        c.crc.Write([]byte{b})
    }
    return b, err
}

type snapshotReader struct {
    cr   *crcReader
    hdr  *Header
    left int64
}

func openSnapshot(r io.Reader) (*snapshotReader, error) {
    cr := &crcReader{r: bufio.NewReaderSize(r, 64<<10), crc: crc32.NewIEEE()}
    var pre [10]byte
    if _, err := io.ReadFull(cr, pre[:]); err != nil {
        return nil, errors.Wrap(ErrCorruptSnapshot, "short preamble")
    }
    if string(pre[:4]) != snapshotMagic {
        return nil, errors.Wrap(ErrCorruptSnapshot, "bad magic")
    }
    if v := binary.BigEndian.Uint16(pre[4:6]); v != snapshotVersion {
        return nil, errors.Errorf("unsupported snapshot version %d", v)
    }
    size := binary.BigEndian.Uint32(pre[6:10])
    if size > maxHeaderSize {
        return nil, errors.Wrapf(ErrCorruptSnapshot, "header of %d bytes", size)
    }
    body := make([]byte, size)
    if _, err := io.ReadFull(cr, body); err != nil {
        return nil, errors.Wrap(ErrCorruptSnapshot, "short header")
    }
    var hdr Header
    if err := json.Unmarshal(body, &hdr); err != nil {
        return nil, errors.Wrapf(ErrCorruptSnapshot, "header: %s", err)
    }
    if hdr.Entries < 0 {
        return nil, errors.Wrap(ErrCorruptSnapshot, "negative entry count")
    }
    return &snapshotReader{cr: cr, hdr: &hdr, left: hdr.Entries}, nil
}

// next returns false once all announced entries are consumed.
func (s *snapshotReader) next() (chunk.Coord, []byte, bool, error) {
    if s.left == 0 {
        return chunk.Coord{}, nil, false, nil
    }
    s.left--
    var xyz [3]int32
    for i := range xyz {
        v, err := binary.ReadVarint(s.cr)
        if err != nil {
            return chunk.Coord{}, nil, false, errors.Wrap(ErrCorruptSnapshot, "short entry")
        }
        xyz[i] = int32(v)
    }
    size, err := binary.ReadUvarint(s.cr)
    if err != nil || size > maxRecordSize {
        return chunk.Coord{}, nil, false, errors.Wrap(ErrCorruptSnapshot, "bad record length")
    }
    rec := make([]byte, size)
    if _, err = io.ReadFull(s.cr, rec); err != nil {
        return chunk.Coord{}, nil, false, errors.Wrap(ErrCorruptSnapshot, "short record")
    }
    return chunk.Coord{X: xyz[0], Y: xyz[1], Z: xyz[2]}, rec, true, nil
}

func (s *snapshotReader) finish() error {
    if s.left != 0 {
        return errors.Errorf("%d snapshot entries left unread", s.left)
    }
    want := s.cr.crc.Sum32()
    var sum [4]byte
    if _, err := io.ReadFull(s.cr.r, sum[:]); err != nil {
        return errors.Wrap(ErrCorruptSnapshot, "missing checksum")
    }
    if binary.BigEndian.Uint32(sum[:]) != want {
        return errors.Wrap(ErrCorruptSnapshot, "checksum mismatch")
    }
    return nil
}

// ReadHeader returns the header of a snapshot without reading its entries.
func ReadHeader(r io.Reader) (*Header, error) {
    s, err := openSnapshot(r)
    if err != nil {
        return nil, err
    }
    return s.hdr, nil
}

// readSnapshot decodes a whole snapshot into memory, transcoding records
// to the compressor named by to. The result is only returned when the
// checksum matches.
func readSnapshot(r io.Reader, to string) (*Header, map[chunk.Coord][]byte, error) {
    s, err := openSnapshot(r)
    if err != nil {
        return nil, nil, err
    }
    comp, err := compressorFor(to)
    if err != nil {
        return nil, nil, err
    }
    recode, err := recoder(s.hdr.Compression, comp)
    if err != nil {
        return nil, nil, err
    }
    entries := make(map[chunk.Coord][]byte, min(s.hdr.Entries, 1<<16))
    for {
        pos, rec, ok, err := s.next()
        if err != nil {
            return nil, nil, err
        }
        if !ok {
            break
        }
        if entries[pos], err = recode(rec); err != nil {
            return nil, nil, errors.Wrapf(err, "entry %s", pos)
        }
    }
    if err = s.finish(); err != nil {
        return nil, nil, err
    }
    return s.hdr, entries, nil
}
