package messages

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// Reader 消息读取端
//
// 通常是包装了连接的 *bufio.Reader。
type Reader interface {
	io.Reader
	io.ByteReader
}

// Encode 将消息编码为一个完整的帧
func Encode(m Message) []byte {
	payload := m.appendPayload(nil)

	packet := uint64(m.PacketType())
	size := uint64(len(payload))
	frame := make([]byte, 0, varint.UvarintSize(packet)+varint.UvarintSize(size)+len(payload))
	frame = append(frame, varint.ToUvarint(packet)...)
	frame = append(frame, varint.ToUvarint(size)...)
	return append(frame, payload...)
}

// Send 编码消息并以一次 Write 写出
func Send(w io.Writer, m Message) error {
	_, err := w.Write(Encode(m))
	return err
}

// Receive 读取并解码一条消息
//
// maxSize 为负载上限，<= 0 表示不限制。
func Receive(r Reader, maxSize int) (Message, error) {
	packet, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if packet > 0xff {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacket, packet)
	}
	m, err := New(PacketType(packet))
	if err != nil {
		return nil, err
	}

	size, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	if maxSize > 0 && size > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, maxSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, unexpectedEOF(err)
	}
	if err := m.decodePayload(payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.PacketType(), err)
	}
	return m, nil
}

// 帧内部的 EOF 不是干净断开
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
