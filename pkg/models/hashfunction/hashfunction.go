package hashfunction

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/go-faster/city"
	"github.com/spaolacci/murmur3"
)

type HashFunctionType int

/* Pre-defined hash functions */
const (
	HashFunctionIdent  = HashFunctionType(0)
	HashFunctionMurmur = HashFunctionType(1)
	HashFunctionCity   = HashFunctionType(2)
)

var (
	errUnknownValueType = func(v any, hf HashFunctionType) error {
		return fmt.Errorf("unknown type of value that the hash will be calculated from: %T for %s hash type", v, ToString(hf))
	}
)

func EncodeUInt64(input uint64) []byte {
	const ENCODING_BYTES_BIG = binary.MaxVarintLen64
	const ENCODING_BYTES = 8
	const BOUND = 1 << 56 /* 72057594037927936 */

	sz := ENCODING_BYTES
	if input >= BOUND {
		sz = ENCODING_BYTES_BIG
	}

	buf := make([]byte, sz)
	binary.PutUvarint(buf, input)
	return buf
}

// keyBytes converts a shard key into the bytes the hash is computed over.
// Integers of any width hash identically.
func keyBytes(input any, hf HashFunctionType) ([]byte, error) {
	switch v := input.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case int:
		return EncodeUInt64(uint64(v)), nil
	case int64:
		return EncodeUInt64(uint64(v)), nil
	case uint64:
		return EncodeUInt64(v), nil
	case float64:
		/* numbers decoded from JSON */
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("non-integer shard key %v", v)
		}
		return EncodeUInt64(uint64(int64(v))), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return EncodeUInt64(uint64(n)), nil
	default:
		return nil, errUnknownValueType(input, hf)
	}
}

func identity(input any) (uint64, error) {
	switch v := input.(type) {
	case uint64:
		return v, nil
	case int64:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	case float64:
		if v != math.Trunc(v) || v < 0 {
			return 0, fmt.Errorf("invalid identity shard key %v", v)
		}
		return uint64(v), nil
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	default:
		return 0, errUnknownValueType(input, HashFunctionIdent)
	}
}

// ApplyHashFunction hashes a shard key with the given function.
func ApplyHashFunction(input any, hf HashFunctionType) (uint64, error) {
	switch hf {
	case HashFunctionIdent:
		return identity(input)
	case HashFunctionMurmur:
		buf, err := keyBytes(input, hf)
		if err != nil {
			return 0, err
		}
		return uint64(murmur3.Sum32(buf)), nil
	case HashFunctionCity:
		buf, err := keyBytes(input, hf)
		if err != nil {
			return 0, err
		}
		return uint64(city.Hash32(buf)), nil
	default:
		return 0, fmt.Errorf("unknown hash function type: %d", hf)
	}
}

// BucketID maps a shard key onto a bucket in [1, bucketCount].
func BucketID(input any, hf HashFunctionType, bucketCount uint64) (uint64, error) {
	if bucketCount == 0 {
		return 0, fmt.Errorf("bucket count must be positive")
	}
	h, err := ApplyHashFunction(input, hf)
	if err != nil {
		return 0, err
	}
	if hf == HashFunctionIdent {
		if h == 0 || h > bucketCount {
			return 0, fmt.Errorf("bucket id %d is out of range [1, %d]", h, bucketCount)
		}
		return h, nil
	}
	return h%bucketCount + 1, nil
}

// HashFunctionByName returns the corresponding HashFunctionType based on the given hash function name.
// It returns an error if the hash function name is not recognized.
func HashFunctionByName(hfn string) (HashFunctionType, error) {
	switch hfn {
	case "identity", "ident":
		return HashFunctionIdent, nil
	case "murmur", "":
		return HashFunctionMurmur, nil
	case "city":
		return HashFunctionCity, nil
	default:
		return 0, fmt.Errorf("unknown hash function type: %s", hfn)
	}
}

// ToString converts a HashFunctionType to its corresponding string representation.
// If the input HashFunctionType is not recognized, an empty string is returned.
func ToString(hf HashFunctionType) string {
	switch hf {
	case HashFunctionIdent:
		return "identity"
	case HashFunctionMurmur:
		return "murmur"
	case HashFunctionCity:
		return "city"
	}
	return ""
}
