package backup

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType represents the compression algorithm of an artifact file
type CompressionType string

const (
	CompressionTypeNone CompressionType = "none"
	CompressionTypeGzip CompressionType = "gzip"
	CompressionTypeZstd CompressionType = "zstd"
	CompressionTypeLZ4  CompressionType = "lz4"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Extension returns the file suffix appended to compressed artifacts
func (c CompressionType) Extension() string {
	switch c {
	case CompressionTypeGzip:
		return ".gz"
	case CompressionTypeZstd:
		return ".zst"
	case CompressionTypeLZ4:
		return ".lz4"
	}
	return ""
}

// ParseCompressionType parses a configured algorithm name
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gzip", "gz":
		return CompressionTypeGzip, nil
	case "zstd", "zst":
		return CompressionTypeZstd, nil
	case "lz4":
		return CompressionTypeLZ4, nil
	case "none", "off":
		return CompressionTypeNone, nil
	}
	return "", NewValidationError(fmt.Sprintf("unsupported compression algorithm: %s", s), nil)
}

// CompressionFromName infers compression from a file name suffix
func CompressionFromName(name string) CompressionType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return CompressionTypeGzip
	case strings.HasSuffix(lower, ".zst"):
		return CompressionTypeZstd
	case strings.HasSuffix(lower, ".lz4"):
		return CompressionTypeLZ4
	}
	return CompressionTypeNone
}

// DetectCompression identifies compressed content by its magic bytes
func DetectCompression(header []byte) CompressionType {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionTypeGzip
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionTypeZstd
	case bytes.HasPrefix(header, lz4Magic):
		return CompressionTypeLZ4
	}
	return CompressionTypeNone
}

// CompressionStats contains statistics about compression operations
type CompressionStats struct {
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Level            int             `json:"level"`
	Duration         time.Duration   `json:"duration"`
}

// Compressor creates streaming encoders and decoders for one algorithm
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	GetAlgorithm() CompressionType
	GetDefaultLevel() int
	GetMaxLevel() int
	GetMinLevel() int
}

// CompressionManager manages compression operations
type CompressionManager struct {
	compressors map[CompressionType]Compressor
}

// NewCompressionManager creates a new compression manager
func NewCompressionManager() *CompressionManager {
	return &CompressionManager{
		compressors: map[CompressionType]Compressor{
			CompressionTypeGzip: &GzipCompressor{},
			CompressionTypeZstd: &ZstdCompressor{},
			CompressionTypeLZ4:  &LZ4Compressor{},
		},
	}
}

// GetCompressor returns a compressor for the specified algorithm
func (cm *CompressionManager) GetCompressor(algorithm CompressionType) (Compressor, error) {
	compressor, exists := cm.compressors[algorithm]
	if !exists {
		return nil, NewCompressionError(fmt.Sprintf("unsupported compression algorithm: %s", algorithm), nil)
	}
	return compressor, nil
}

// CompressFile streams src into src+extension and removes src on success.
// An existing file at the target name is never overwritten; a short random
// fragment is inserted before the extension instead. On failure the partial
// output is removed and src is left untouched.
func (cm *CompressionManager) CompressFile(src string, algorithm CompressionType, level int) (string, *CompressionStats, error) {
	if algorithm == CompressionTypeNone {
		info, err := os.Stat(src)
		if err != nil {
			return "", nil, NewStorageError("failed to stat dump file", err)
		}
		return src, &CompressionStats{
			OriginalSize:     info.Size(),
			CompressedSize:   info.Size(),
			CompressionRatio: 1.0,
			Algorithm:        CompressionTypeNone,
		}, nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return "", nil, err
	}
	if level < compressor.GetMinLevel() || level > compressor.GetMaxLevel() {
		level = compressor.GetDefaultLevel()
	}

	start := time.Now()

	in, err := os.Open(src)
	if err != nil {
		return "", nil, NewStorageError("failed to open dump file for compression", err)
	}
	defer in.Close()

	out, dst, err := createCompressedFile(src + algorithm.Extension())
	if err != nil {
		return "", nil, err
	}

	originalSize, err := cm.compressStream(out, in, compressor, level)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = NewCompressionError("failed to close compressed file", closeErr)
	}
	if err != nil {
		os.Remove(dst)
		return "", nil, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		os.Remove(dst)
		return "", nil, NewStorageError("failed to stat compressed file", err)
	}
	in.Close()
	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return "", nil, NewStorageError("failed to remove uncompressed dump file", err)
	}

	return dst, &CompressionStats{
		OriginalSize:     originalSize,
		CompressedSize:   info.Size(),
		CompressionRatio: CalculateCompressionRatio(originalSize, info.Size()),
		Algorithm:        algorithm,
		Level:            level,
		Duration:         time.Since(start),
	}, nil
}

// createCompressedFile exclusively creates name, falling back to a suffixed
// variant of it when another artifact already holds the name.
func createCompressedFile(name string) (*os.File, string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		candidate := name
		if attempt > 0 {
			stem, ext := SplitArtifactExt(name)
			candidate = fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext)
		}

		file, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return file, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", NewStorageError("failed to create compressed file", err)
		}
	}
	return nil, "", NewConflictError(fmt.Sprintf("could not allocate a unique file name for %s", name), nil)
}

func (cm *CompressionManager) compressStream(dst io.Writer, src io.Reader, compressor Compressor, level int) (int64, error) {
	writer, err := compressor.NewWriter(dst, level)
	if err != nil {
		return 0, NewCompressionError(fmt.Sprintf("failed to create %s writer", compressor.GetAlgorithm()), err)
	}

	n, err := io.Copy(writer, src)
	if err != nil {
		writer.Close()
		return n, NewCompressionError(fmt.Sprintf("failed to write %s data", compressor.GetAlgorithm()), err)
	}
	if err := writer.Close(); err != nil {
		return n, NewCompressionError(fmt.Sprintf("failed to close %s writer", compressor.GetAlgorithm()), err)
	}
	return n, nil
}

// Compress compresses an in-memory buffer
func (cm *CompressionManager) Compress(data []byte, algorithm CompressionType, level int) ([]byte, error) {
	if algorithm == CompressionTypeNone {
		return data, nil
	}
	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, err
	}
	if level < compressor.GetMinLevel() || level > compressor.GetMaxLevel() {
		level = compressor.GetDefaultLevel()
	}

	var buf bytes.Buffer
	if _, err := cm.compressStream(&buf, bytes.NewReader(data), compressor, level); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress expands data compressed with algorithm
func (cm *CompressionManager) Decompress(data []byte, algorithm CompressionType) ([]byte, error) {
	if algorithm == CompressionTypeNone {
		return data, nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, err
	}

	reader, err := compressor.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewCorruptionError(fmt.Sprintf("invalid %s stream", algorithm), err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewCorruptionError(fmt.Sprintf("failed to decompress %s data", algorithm), err)
	}
	return out, nil
}

// DecompressAuto expands data whose compression is identified by magic bytes,
// falling back to the file name suffix. Uncompressed data is returned as is.
func (cm *CompressionManager) DecompressAuto(data []byte, name string) ([]byte, CompressionType, error) {
	algorithm := DetectCompression(data)
	if algorithm == CompressionTypeNone {
		algorithm = CompressionFromName(name)
		if algorithm != CompressionTypeNone && len(data) > 0 && looksLikeText(data) {
			// Mislabelled plain script
			return data, CompressionTypeNone, nil
		}
	}

	out, err := cm.Decompress(data, algorithm)
	return out, algorithm, err
}

// OpenDecompressed wraps r so that reads yield decompressed content when the
// stream starts with a known magic number
func (cm *CompressionManager) OpenDecompressed(r io.Reader) (io.ReadCloser, CompressionType, error) {
	br := bufio.NewReader(r)
	header, _ := br.Peek(4)

	algorithm := DetectCompression(header)
	if algorithm == CompressionTypeNone {
		return io.NopCloser(br), CompressionTypeNone, nil
	}

	compressor, err := cm.GetCompressor(algorithm)
	if err != nil {
		return nil, algorithm, err
	}
	reader, err := compressor.NewReader(br)
	if err != nil {
		return nil, algorithm, NewCorruptionError(fmt.Sprintf("invalid %s stream", algorithm), err)
	}
	return reader, algorithm, nil
}

func looksLikeText(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	return bytes.IndexByte(sample, 0) < 0 && (bytes.HasPrefix(bytes.TrimSpace(sample), []byte("--")) ||
		bytes.Contains(sample, []byte("CREATE")) || bytes.Contains(sample, []byte("INSERT")))
}

// CalculateCompressionRatio calculates the compression ratio
func CalculateCompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize == 0 {
		return 1.0
	}
	return float64(compressedSize) / float64(originalSize)
}

// GzipCompressor implements gzip compression
type GzipCompressor struct{}

func (gc *GzipCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, level)
}

func (gc *GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (gc *GzipCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeGzip
}

func (gc *GzipCompressor) GetDefaultLevel() int {
	return gzip.DefaultCompression
}

func (gc *GzipCompressor) GetMaxLevel() int {
	return gzip.BestCompression
}

func (gc *GzipCompressor) GetMinLevel() int {
	return gzip.BestSpeed
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct{}

func (zc *ZstdCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	var encoderLevel zstd.EncoderLevel
	switch {
	case level <= 1:
		encoderLevel = zstd.SpeedFastest
	case level <= 3:
		encoderLevel = zstd.SpeedDefault
	case level <= 6:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedBestCompression
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
}

func (zc *ZstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

func (zc *ZstdCompressor) GetAlgorithm() CompressionType {
	return CompressionTypeZstd
}

func (zc *ZstdCompressor) GetDefaultLevel() int {
	return 3
}

func (zc *ZstdCompressor) GetMaxLevel() int {
	return 22
}

func (zc *ZstdCompressor) GetMinLevel() int {
	return 1
}

// LZ4Compressor implements LZ4 frame compression
type LZ4Compressor struct{}

func (lc *LZ4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, err
		}
	}
	return writer, nil
}

func (lc *LZ4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lc *LZ4Compressor) GetAlgorithm() CompressionType {
	return CompressionTypeLZ4
}

func (lc *LZ4Compressor) GetDefaultLevel() int {
	return 1
}

func (lc *LZ4Compressor) GetMaxLevel() int {
	return 12
}

func (lc *LZ4Compressor) GetMinLevel() int {
	return 1
}
