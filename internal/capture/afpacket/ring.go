package afpacket

import (
	"fmt"
)

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // TPACKET3_HDRLEN, approximate
	maxBlockSize     = 4 * 1024 * 1024
)

// ringLayout is the PACKET_MMAP geometry for one TPacket handle.
type ringLayout struct {
	FrameSize int
	BlockSize int
	NumBlocks int
}

// computeRing derives a ring layout of roughly bufferMB megabytes that
// satisfies the PACKET_MMAP alignment rules:
//   - frame size is a multiple of TPACKET_ALIGNMENT
//   - block size is a multiple of the page size and of the frame size
func computeRing(bufferMB, snapLen, pageSize int) (ringLayout, error) {
	if bufferMB <= 0 {
		return ringLayout{}, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return ringLayout{}, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return ringLayout{}, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize := alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	blockSize := lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Power-of-two frames divide any power-of-two page size.
		frameSize = nextPow2(frameSize)
		blockSize = lcm(pageSize, frameSize)
	}

	numBlocks := max(bufferMB*1024*1024/blockSize, 1)
	return ringLayout{FrameSize: frameSize, BlockSize: blockSize, NumBlocks: numBlocks}, nil
}

func alignUp(n, align int) int {
	return ((n + align - 1) / align) * align
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
