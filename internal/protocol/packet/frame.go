package packet

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/annel0/mc-server/internal/protocol/codec"
	"github.com/klauspost/compress/zlib"
)

const (
	// MaxFrameLen предел длины кадра (трёхбайтовый VarInt).
	MaxFrameLen = 1<<21 - 1
	// MaxUncompressedLen предел заявленной длины распакованных данных.
	MaxUncompressedLen = 1 << 21
	// CompressionDisabled порог, при котором сжатие выключено.
	CompressionDisabled = -1
)

var (
	zlibWriters = sync.Pool{New: func() interface{} {
		zw, _ := zlib.NewWriterLevel(io.Discard, zlib.DefaultCompression)
		return zw
	}}
	zlibReaders sync.Pool
)

// AppendFrame дописывает в dst кадр с полезной нагрузкой payload (id + тело).
// threshold < 0: формат без сжатия; иначе нагрузка не короче порога сжимается zlib.
func AppendFrame(dst, payload []byte, threshold int) ([]byte, error) {
	if threshold < 0 {
		dst = codec.AppendVarInt(dst, int32(len(payload)))
		return append(dst, payload...), nil
	}
	if len(payload) < threshold {
		dst = codec.AppendVarInt(dst, int32(1+len(payload)))
		dst = codec.AppendVarInt(dst, 0)
		return append(dst, payload...), nil
	}
	compressed, err := deflate(payload)
	if err != nil {
		return dst, err
	}
	dataLen := int32(len(payload))
	dst = codec.AppendVarInt(dst, int32(codec.VarIntSize(dataLen)+len(compressed)))
	dst = codec.AppendVarInt(dst, dataLen)
	return append(dst, compressed...), nil
}

// WriteFrame кодирует пакет и пишет один кадр в w.
func WriteFrame(w io.Writer, p Packet, threshold int) error {
	frame, err := AppendFrame(nil, EncodePacket(p), threshold)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame читает кадр из потока и возвращает полезную нагрузку (id + тело).
// io.EOF возвращается только если поток закрыт ровно на границе кадра.
func ReadFrame(r *bufio.Reader, threshold int) ([]byte, error) {
	length, err := codec.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if err := checkFrameLen(length); err != nil {
		return nil, err
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("frame of %d bytes: %w", length, codec.ErrTruncatedInput)
		}
		return nil, err
	}
	return unwrapFrame(frame, threshold)
}

// DecodeFrame разбирает первый кадр буфера b. n: число потреблённых байт.
// Неполный кадр даёт codec.ErrTruncatedInput.
func DecodeFrame(b []byte, threshold int) (payload []byte, n int, err error) {
	length, hdr, err := codec.DecodeVarInt(b)
	if err != nil {
		return nil, 0, err
	}
	if err := checkFrameLen(length); err != nil {
		return nil, 0, err
	}
	end := hdr + int(length)
	if end > len(b) {
		return nil, 0, codec.ErrTruncatedInput
	}
	payload, err = unwrapFrame(b[hdr:end], threshold)
	if err != nil {
		return nil, 0, err
	}
	return payload, end, nil
}

func checkFrameLen(length int32) error {
	if length <= 0 {
		return fmt.Errorf("%w: declared length %d", ErrFrameLengthMismatch, length)
	}
	if length > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	return nil
}

func unwrapFrame(frame []byte, threshold int) ([]byte, error) {
	if threshold < 0 {
		return frame, nil
	}
	dataLen, n, err := codec.DecodeVarInt(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: data length: %w", ErrFrameLengthMismatch, err)
	}
	rest := frame[n:]
	switch {
	case dataLen == 0:
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: empty payload", ErrFrameLengthMismatch)
		}
		return rest, nil
	case dataLen < 0 || dataLen > MaxUncompressedLen:
		return nil, fmt.Errorf("%w: declared data length %d", ErrFrameTooLarge, dataLen)
	case int(dataLen) < threshold:
		return nil, fmt.Errorf("%w: %d bytes below threshold %d", ErrBadCompression, dataLen, threshold)
	}
	return inflate(rest, int(dataLen))
}

func deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlibWriters.Get().(*zlib.Writer)
	defer zlibWriters.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(src []byte, size int) ([]byte, error) {
	var zr io.ReadCloser
	if v := zlibReaders.Get(); v != nil {
		zr = v.(io.ReadCloser)
		if err := zr.(zlib.Resetter).Reset(bytes.NewReader(src), nil); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCompression, err)
		}
	} else {
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCompression, err)
		}
		zr = r
	}
	defer zlibReaders.Put(zr)

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: inflated less than %d bytes", ErrFrameLengthMismatch, size)
		}
		return nil, fmt.Errorf("%w: %v", ErrBadCompression, err)
	}
	// после данных поток обязан закончиться, заодно проверяется adler32
	var extra [1]byte
	n, err := io.ReadAtLeast(zr, extra[:], 1)
	if n > 0 {
		return nil, fmt.Errorf("%w: inflated more than %d bytes", ErrFrameLengthMismatch, size)
	}
	if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrBadCompression, err)
	}
	return out, nil
}
