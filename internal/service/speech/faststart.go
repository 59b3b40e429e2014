package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	mp4 "github.com/abema/go-mp4"
)

var chunkOffsetPaths = []mp4.BoxPath{
	{mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), mp4.BoxTypeStco()},
	{mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl(), mp4.BoxTypeCo64()},
}

// isMP4 reports whether data starts with an ISO BMFF ftyp box.
func isMP4(data []byte) bool {
	return len(data) >= 8 && string(data[4:8]) == "ftyp"
}

// moovFirst 将 moov 移到第一个 mdat 之前并平移 stco/co64 中的块偏移，
// ffmpeg 从管道读取时无法回跳到文件尾部的 moov。已是 moov 在前的文件原样返回。
func moovFirst(data []byte) ([]byte, error) {
	r := bytes.NewReader(data)
	vals, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (interface{}, error) {
		return h.BoxInfo, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read mp4 boxes: %w", err)
	}

	boxes := make([]mp4.BoxInfo, 0, len(vals))
	moovAt, mdatAt := -1, -1
	for _, v := range vals {
		bi := v.(mp4.BoxInfo)
		switch {
		case bi.Type == mp4.BoxTypeMoov() && moovAt < 0:
			moovAt = len(boxes)
		case bi.Type == mp4.BoxTypeMdat() && mdatAt < 0:
			mdatAt = len(boxes)
		}
		boxes = append(boxes, bi)
	}
	if moovAt < 0 || mdatAt < 0 || moovAt < mdatAt {
		return data, nil
	}

	moov := boxes[moovAt]
	moovBytes := append([]byte(nil), data[moov.Offset:moov.Offset+moov.Size]...)
	if err := shiftChunkOffsets(r, moov, moovBytes, moov.Size); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(data))
	for i, bi := range boxes {
		switch i {
		case moovAt:
			continue
		case mdatAt:
			out = append(out, moovBytes...)
		}
		out = append(out, data[bi.Offset:bi.Offset+bi.Size]...)
	}
	return out, nil
}

// shiftChunkOffsets adds delta to every chunk offset inside moovBytes, a copy
// of the moov box described by moov.
func shiftChunkOffsets(r *bytes.Reader, moov mp4.BoxInfo, moovBytes []byte, delta uint64) error {
	tables, err := mp4.ExtractBoxesWithPayload(r, nil, chunkOffsetPaths)
	if err != nil {
		return fmt.Errorf("read chunk offsets: %w", err)
	}

	for _, table := range tables {
		// FullBox(4) + entry_count(4) 之后是偏移表
		base := table.Info.Offset - moov.Offset + table.Info.HeaderSize + 8
		switch box := table.Payload.(type) {
		case *mp4.Stco:
			for i, off := range box.ChunkOffset {
				shifted := uint64(off) + delta
				if shifted > math.MaxUint32 {
					return fmt.Errorf("chunk offset %d overflows stco", shifted)
				}
				binary.BigEndian.PutUint32(moovBytes[base+uint64(i)*4:], uint32(shifted))
			}
		case *mp4.Co64:
			for i, off := range box.ChunkOffset {
				binary.BigEndian.PutUint64(moovBytes[base+uint64(i)*8:], off+delta)
			}
		}
	}
	return nil
}
