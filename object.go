package objectrepo

import (
	"io"

	"github.com/google/uuid"

	"objectrepo/internal/header"
	"objectrepo/internal/object"
)

// Object is a seekable read/write handle over one stored value, opened
// with Repository.OpenObject or Repository.OpenManagedObject. It
// satisfies io.Reader, io.Writer, and io.Seeker. Changes are visible to
// the Object itself immediately but are not durable, and not visible
// under a fresh Get/OpenObject, until the owning Repository commits.
type Object struct {
	repo *Repository
	view *object.View

	instance header.InstanceID
	key      string
	managed  uuid.UUID
	isKeyed  bool
}

func newObject(repo *Repository, inst header.InstanceID, handle header.ObjectHandle) *Object {
	return &Object{
		repo:     repo,
		view:     object.New(repo.chunks, repo.chunking, handle),
		instance: inst,
	}
}

// rebind repoints the underlying view at a freshly (re)constructed
// chunk store, called by Repository after Restore swaps the header the
// store is built over. Rollback replaces the view instead.
func (o *Object) rebind(chunks object.ChunkStore) {
	o.view.SetStore(chunks)
}

// Read implements io.Reader. An AEAD authentication failure in the
// underlying chunk surfaces as ErrInvalidData (spec.md §8 invariant 7).
func (o *Object) Read(p []byte) (int, error) {
	n, err := o.view.Read(p)
	return n, wrapData(err)
}

// Write implements io.Writer.
func (o *Object) Write(p []byte) (int, error) {
	n, err := o.view.Write(p)
	return n, wrapData(err)
}

// Seek implements io.Seeker.
func (o *Object) Seek(offset int64, whence int) (int64, error) {
	pos, err := o.view.Seek(offset, whence)
	return pos, wrapData(err)
}

// Size returns the object's current logical length.
func (o *Object) Size() uint64 { return o.view.Size() }

// Truncate resizes the object to n bytes, zero-filling if n is past the
// current size.
func (o *Object) Truncate(n uint64) error { return wrapData(o.view.Truncate(n)) }

// ContentID returns the object's content id: a hash over its ordered
// chunk-hash sequence (spec.md §3). Equal content ids imply equal bytes;
// equal bytes reached through a different sequence of writes, reads or
// truncations may be chunked differently and then get a different id.
func (o *Object) ContentID() (header.ContentID, error) {
	id, err := o.view.ContentID()
	return id, wrapData(err)
}

// flush writes the view's resulting handle back into the repository's
// instance map. It does not make the change durable; that is
// Repository.Commit's job.
func (o *Object) flush() error {
	handle, err := o.view.Handle()
	if err != nil {
		return wrapData(err)
	}
	if o.isKeyed {
		return o.repo.instances.Put(o.instance, o.key, handle)
	}
	return o.repo.instances.PutManaged(o.instance, o.managed, handle)
}

// Close flushes the object's pending state into the repository without
// committing the transaction, and stops the Repository from tracking it
// for future auto-flushes on Commit. Callers that want the object's
// writes to survive must still call Repository.Commit.
func (o *Object) Close() error {
	if err := o.flush(); err != nil {
		return err
	}
	o.repo.untrack(o)
	return nil
}

var (
	_ io.Reader = (*Object)(nil)
	_ io.Writer = (*Object)(nil)
	_ io.Seeker = (*Object)(nil)
)
