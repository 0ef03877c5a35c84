package aggregate

import (
	"bytes"
	"crypto/md5" //nolint:gosec // required by the wire format, not used for security
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Magic is the 4-byte prefix that identifies an aggregated record payload.
var Magic = [4]byte{0xF3, 0x89, 0x9A, 0xC2}

const (
	fieldPartitionKeyTable     = 1
	fieldExplicitHashKeyTable  = 2
	fieldRecords               = 3
	recordFieldPartitionKeyIdx = 1
	recordFieldExplicitHashIdx = 2
	recordFieldData            = 3
)

// WireRecord is one child record inside an AggregatedRecord payload.
type WireRecord struct {
	PartitionKeyIndex uint64
	Data              []byte
}

// EncodeAggregated builds the framed wire payload: a 4-byte magic, the
// protobuf-encoded AggregatedRecord message, then a 16-byte MD5 trailer
// computed over the bytes following the magic.
func EncodeAggregated(partitionKeyTable []string, records []WireRecord) []byte {
	var msg []byte
	for _, pk := range partitionKeyTable {
		msg = protowire.AppendTag(msg, fieldPartitionKeyTable, protowire.BytesType)
		msg = protowire.AppendBytes(msg, []byte(pk))
	}
	for _, r := range records {
		var rec []byte
		rec = protowire.AppendTag(rec, recordFieldPartitionKeyIdx, protowire.VarintType)
		rec = protowire.AppendVarint(rec, r.PartitionKeyIndex)
		rec = protowire.AppendTag(rec, recordFieldData, protowire.BytesType)
		rec = protowire.AppendBytes(rec, r.Data)

		msg = protowire.AppendTag(msg, fieldRecords, protowire.BytesType)
		msg = protowire.AppendBytes(msg, rec)
	}

	buf := make([]byte, 0, 4+len(msg)+16)
	buf = append(buf, Magic[:]...)
	buf = append(buf, msg...)

	checksum := md5.Sum(buf[4:])
	buf = append(buf, checksum[:]...)
	return buf
}

// DecodeAggregated parses a framed payload produced by EncodeAggregated,
// verifying the magic and the MD5 trailer.
func DecodeAggregated(buf []byte) (partitionKeyTable []string, records []WireRecord, err error) {
	if len(buf) < 4+16 {
		return nil, nil, fmt.Errorf("aggregate: payload too short (%d bytes)", len(buf))
	}
	if [4]byte(buf[:4]) != Magic {
		return nil, nil, fmt.Errorf("aggregate: bad magic bytes %x", buf[:4])
	}

	body := buf[4 : len(buf)-16]
	trailer := buf[len(buf)-16:]

	checksum := md5.Sum(buf[4 : len(buf)-16])
	if !bytes.Equal(checksum[:], trailer) {
		return nil, nil, fmt.Errorf("aggregate: md5 trailer mismatch")
	}

	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, nil, fmt.Errorf("aggregate: malformed tag: %w", protowire.ParseError(n))
		}
		body = body[n:]

		switch num {
		case fieldPartitionKeyTable:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nil, fmt.Errorf("aggregate: malformed partition_key_table entry: %w", protowire.ParseError(n))
			}
			partitionKeyTable = append(partitionKeyTable, string(v))
			body = body[n:]
		case fieldRecords:
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return nil, nil, fmt.Errorf("aggregate: malformed record entry: %w", protowire.ParseError(n))
			}
			rec, err := decodeWireRecord(v)
			if err != nil {
				return nil, nil, err
			}
			records = append(records, rec)
			body = body[n:]
		default:
			// skip unknown fields (e.g. explicit_hash_key_table, tags)
			n := protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return nil, nil, fmt.Errorf("aggregate: malformed field %d: %w", num, protowire.ParseError(n))
			}
			body = body[n:]
		}
	}

	for _, r := range records {
		if r.PartitionKeyIndex >= uint64(len(partitionKeyTable)) {
			return nil, nil, fmt.Errorf("aggregate: record references out-of-range partition_key_index %d", r.PartitionKeyIndex)
		}
	}

	return partitionKeyTable, records, nil
}

func decodeWireRecord(buf []byte) (WireRecord, error) {
	var rec WireRecord
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return WireRecord{}, fmt.Errorf("aggregate: malformed record tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch num {
		case recordFieldPartitionKeyIdx:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return WireRecord{}, fmt.Errorf("aggregate: malformed partition_key_index: %w", protowire.ParseError(n))
			}
			rec.PartitionKeyIndex = v
			buf = buf[n:]
		case recordFieldData:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return WireRecord{}, fmt.Errorf("aggregate: malformed data: %w", protowire.ParseError(n))
			}
			rec.Data = append([]byte(nil), v...)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return WireRecord{}, fmt.Errorf("aggregate: malformed record field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return rec, nil
}
