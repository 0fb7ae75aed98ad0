// Package types holds the domain identifiers and values of the wiki store,
// together with their byte encodings. All ids encode fixed-width big-endian
// so that lexicographic byte order equals numeric order; that property is
// what makes "prefix scan, take the last key" a valid way to find the
// current revision of an article.
package types

import (
	"encoding/binary"
	"time"

	"github.com/quillwiki/quill/pkg/wikierror"
)

const (
	// FirstID is the first value an id namespace hands out. Zero is
	// reserved so an all-zero key can never belong to a live record.
	FirstID uint32 = 1

	// FirstRevisionNumber is the number of an article's initial revision.
	FirstRevisionNumber uint32 = 1

	ArticleIDLen  = 4
	UserIDLen     = 4
	RevisionIDLen = 8
	timestampLen  = 8
)

// ArticleID identifies one article. Allocated monotonically, never reused.
type ArticleID uint32

func (id ArticleID) Bytes() []byte {
	b := make([]byte, ArticleIDLen)
	binary.BigEndian.PutUint32(b, uint32(id))
	return b
}

func ArticleIDFromBytes(b []byte) (ArticleID, error) {
	if len(b) != ArticleIDLen {
		return 0, wikierror.MalformedKey(len(b), ArticleIDLen)
	}
	return ArticleID(binary.BigEndian.Uint32(b)), nil
}

func (id ArticleID) Next() ArticleID {
	return id + 1
}

// UserID identifies one user. Same shape and allocation policy as
// ArticleID, independent namespace.
type UserID uint32

func (id UserID) Bytes() []byte {
	b := make([]byte, UserIDLen)
	binary.BigEndian.PutUint32(b, uint32(id))
	return b
}

func UserIDFromBytes(b []byte) (UserID, error) {
	if len(b) != UserIDLen {
		return 0, wikierror.MalformedKey(len(b), UserIDLen)
	}
	return UserID(binary.BigEndian.Uint32(b)), nil
}

func (id UserID) Next() UserID {
	return id + 1
}

// RevisionID is the composite key (article id, revision number) identifying
// one revision. Values should only ever be obtained from store lookups;
// untrusted input goes through the store's VerifiedRevisionID instead.
type RevisionID struct {
	Article ArticleID
	Number  uint32
}

// FirstRevisionID is the id of an article's initial revision.
func FirstRevisionID(article ArticleID) RevisionID {
	return RevisionID{Article: article, Number: FirstRevisionNumber}
}

// Bytes encodes as article id followed by revision number, both big-endian,
// so all revisions of an article sort contiguously and in number order.
func (r RevisionID) Bytes() []byte {
	b := make([]byte, RevisionIDLen)
	binary.BigEndian.PutUint32(b[:4], uint32(r.Article))
	binary.BigEndian.PutUint32(b[4:], r.Number)
	return b
}

func RevisionIDFromBytes(b []byte) (RevisionID, error) {
	if len(b) != RevisionIDLen {
		return RevisionID{}, wikierror.MalformedKey(len(b), RevisionIDLen)
	}
	return RevisionID{
		Article: ArticleID(binary.BigEndian.Uint32(b[:4])),
		Number:  binary.BigEndian.Uint32(b[4:]),
	}, nil
}

func (r RevisionID) Next() RevisionID {
	return RevisionID{Article: r.Article, Number: r.Number + 1}
}

// Article pairs an id with its current unique name.
type Article struct {
	ID   ArticleID
	Name string
}

// Revision is one immutable version of an article's content. Never updated
// in place, never deleted.
type Revision struct {
	Content string
	Author  UserID
	Date    time.Time
}

func (r Revision) Meta() RevisionMeta {
	return RevisionMeta{Author: r.Author, Date: r.Date}
}

// RevisionMeta is a Revision without its content, for cheap listing.
type RevisionMeta struct {
	Author UserID
	Date   time.Time
}

// TimeToBytes encodes a timestamp as 8 bytes of big-endian unix
// nanoseconds. Chronological order equals byte order.
func TimeToBytes(t time.Time) []byte {
	b := make([]byte, timestampLen)
	binary.BigEndian.PutUint64(b, uint64(t.UnixNano()))
	return b
}

func TimeFromBytes(b []byte) (time.Time, error) {
	if len(b) != timestampLen {
		return time.Time{}, wikierror.MalformedKey(len(b), timestampLen)
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(b))).UTC(), nil
}
