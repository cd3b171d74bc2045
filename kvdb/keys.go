package kvdb

import (
	"fmt"
	"net/url"
	"strings"
)

// Key layout shared by the badger and etcd engines. Tuples are stored
// under their space and key; a per-bucket index makes bucket scans
// prefix scans.
const (
	bucketsNamespace     = "/buckets/"
	tuplesNamespace      = "/tuples/"
	bucketIndexNamespace = "/bucket_index/"
	spacesNamespace      = "/spaces/"
)

func bucketNodePath(id uint64) string {
	return bucketsNamespace + fmt.Sprintf("%020d", id)
}

func tupleNodePath(space, key string) string {
	return tuplesNamespace + url.PathEscape(space) + "/" + url.PathEscape(key)
}

func bucketIndexPrefix(space string, id uint64) string {
	return bucketIndexNamespace + url.PathEscape(space) + "/" + fmt.Sprintf("%020d", id) + "/"
}

func bucketIndexNodePath(space string, id uint64, key string) string {
	return bucketIndexPrefix(space, id) + url.PathEscape(key)
}

func spaceNodePath(space string) string {
	return spacesNamespace + url.PathEscape(space)
}

func spaceFromNodePath(nodePath string) (string, error) {
	return url.PathUnescape(strings.TrimPrefix(nodePath, spacesNamespace))
}

func keyFromIndexPath(prefix, nodePath string) (string, error) {
	return url.PathUnescape(strings.TrimPrefix(nodePath, prefix))
}
