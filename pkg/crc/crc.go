// Package crc implements the CL7206C2 frame checksum: CRC-16 with
// polynomial 0x8005, initial value 0x0000, MSB-first, no reflection
// (CRC-16/BUYPASS). The checksum covers command through end of payload;
// the 0xAA sync marker and the checksum field itself are excluded.
package crc

// Poly is the generator polynomial used by the reader firmware.
const Poly uint16 = 0x8005

var table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ Poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
}

// Checksum computes the CRC-16 over exactly the bytes given.
func Checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc << 8) ^ table[byte(crc>>8)^b]
	}
	return crc
}

// Append returns data with its big-endian checksum appended.
func Append(data []byte) []byte {
	sum := Checksum(data)
	out := make([]byte, len(data)+2)
	copy(out, data)
	out[len(data)] = byte(sum >> 8)
	out[len(data)+1] = byte(sum)
	return out
}

// Verify checks a byte range that carries its big-endian checksum in the
// trailing two bytes.
func Verify(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	sum := Checksum(data[:len(data)-2])
	got := uint16(data[len(data)-2])<<8 | uint16(data[len(data)-1])
	return sum == got
}
