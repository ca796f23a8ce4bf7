package sun

import (
	"crypto/aes"
	"crypto/cipher"
)

// aesCMAC computes the AES-CMAC (RFC 4493) of msg under key. No library in
// the corpus vendors AES-CMAC (golang.org/x/crypto has no cmac subpackage),
// so this is a direct, stdlib-only port of the RFC's subkey generation and
// MAC computation, built on crypto/aes and crypto/cipher only.
func aesCMAC(key, msg []byte) ([16]byte, error) {
	var out [16]byte

	block, err := aes.NewCipher(key)
	if err != nil {
		return out, err
	}

	k1, k2 := subkeys(block)

	blockSize := block.BlockSize()
	n := (len(msg) + blockSize - 1) / blockSize
	var lastBlock []byte
	var complete bool

	if n == 0 {
		n = 1
		complete = false
	} else {
		complete = len(msg)%blockSize == 0
	}

	if complete {
		lastBlock = xor16(msg[(n-1)*blockSize:], k1)
	} else {
		padded := padBlock(msg[(n-1)*blockSize:], blockSize)
		lastBlock = xor16(padded, k2)
	}

	full := make([]byte, 0, n*blockSize)
	full = append(full, msg[:(n-1)*blockSize]...)
	full = append(full, lastBlock...)

	iv := make([]byte, blockSize)
	mode := cipher.NewCBCEncrypter(block, iv)
	cipherText := make([]byte, len(full))
	mode.CryptBlocks(cipherText, full)

	copy(out[:], cipherText[len(cipherText)-blockSize:])
	return out, nil
}

// subkeys derives K1, K2 from the cipher per RFC 4493 section 2.3.
func subkeys(block cipher.Block) (k1, k2 [16]byte) {
	const rb = 0x87

	var zero, l [16]byte
	block.Encrypt(l[:], zero[:])

	k1 = shiftLeftXorRb(l, rb)
	k2 = shiftLeftXorRb(k1, rb)
	return k1, k2
}

func shiftLeftXorRb(in [16]byte, rb byte) [16]byte {
	var out [16]byte
	msbSet := in[0]&0x80 != 0

	var carry byte
	for i := 15; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = (in[i] & 0x80) >> 7
	}

	if msbSet {
		out[15] ^= rb
	}
	return out
}

func xor16(in []byte, k [16]byte) []byte {
	out := make([]byte, 16)
	for i := 0; i < 16; i++ {
		var b byte
		if i < len(in) {
			b = in[i]
		}
		out[i] = b ^ k[i]
	}
	return out
}

func padBlock(in []byte, blockSize int) []byte {
	out := make([]byte, blockSize)
	copy(out, in)
	out[len(in)] = 0x80
	return out
}
