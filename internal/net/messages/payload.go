package messages

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const fieldNonce, fieldAddr protowire.Number = 1, 1

func (m *Ping) appendPayload(b []byte) []byte { return appendNonce(b, m.Nonce) }

func (m *Ping) decodePayload(b []byte) (err error) {
	m.Nonce, err = consumeNonce(b)
	return err
}

func (m *Pong) appendPayload(b []byte) []byte { return appendNonce(b, m.Nonce) }

func (m *Pong) decodePayload(b []byte) (err error) {
	m.Nonce, err = consumeNonce(b)
	return err
}

func (*GetAddrs) appendPayload(b []byte) []byte { return b }

func (*GetAddrs) decodePayload(b []byte) error {
	return walkFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return -1, nil
	})
}

func (m *Addrs) appendPayload(b []byte) []byte {
	for _, addr := range m.Addrs {
		b = protowire.AppendTag(b, fieldAddr, protowire.BytesType)
		b = protowire.AppendString(b, addr)
	}
	return b
}

func (m *Addrs) decodePayload(b []byte) error {
	m.Addrs = nil
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldAddr || typ != protowire.BytesType {
			return -1, nil
		}
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		m.Addrs = append(m.Addrs, v)
		return n, nil
	})
}

func appendNonce(b, nonce []byte) []byte {
	if len(nonce) == 0 {
		return b
	}
	b = protowire.AppendTag(b, fieldNonce, protowire.BytesType)
	return protowire.AppendBytes(b, nonce)
}

func consumeNonce(b []byte) ([]byte, error) {
	var nonce []byte
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldNonce || typ != protowire.BytesType {
			return -1, nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		nonce = append([]byte(nil), v...)
		return n, nil
	})
	return nonce, err
}

// walkFields 遍历 payload 中的字段
//
// field 返回消费的字节数；返回 -1 表示跳过该字段（未知字段兼容）。
func walkFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if n < 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}
