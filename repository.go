package objectrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"objectrepo/internal/chunker"
	"objectrepo/internal/chunkstore"
	"objectrepo/internal/codec"
	"objectrepo/internal/header"
	"objectrepo/internal/instance"
	"objectrepo/internal/keymat"
	"objectrepo/internal/lockmgr"
	"objectrepo/internal/object"
	"objectrepo/internal/pack"
	"objectrepo/internal/rstore"
	"objectrepo/internal/txn"
)

// Repository is a handle to one transactional object repository. It is
// not safe for concurrent use by multiple goroutines without external
// synchronization (spec.md §5): an internal mutex only serializes
// calls made through this handle, it does not allow two handles to
// share a backing store concurrently.
type Repository struct {
	mu       sync.Mutex
	blocks   rstore.Store
	params   codec.Params
	master   keymat.MasterKey
	sb       *header.Superblock
	chunking chunker.Params
	logger   *slog.Logger

	txn       *txn.Manager
	instances *instance.Manager
	chunks    object.ChunkStore
	packStore *pack.Store // non-nil only when Packing.Mode == header.PackingFixed

	lock   *lockmgr.Token
	closed bool

	open []*Object
}

// Create initializes a new repository against blocks. Fails with
// ErrAlreadyExists if a Superblock is already present.
func Create(ctx context.Context, blocks rstore.Store, opts Options) (*Repository, error) {
	opts = opts.withDefaults()
	opts.Mode = ModeCreateNew
	return open(ctx, blocks, opts)
}

// Open attaches to an existing repository on blocks. Fails with
// ErrNotFound if no Superblock is present.
func Open(ctx context.Context, blocks rstore.Store, opts Options) (*Repository, error) {
	opts = opts.withDefaults()
	opts.Mode = ModeOpen
	return open(ctx, blocks, opts)
}

// CreateOrOpen opens an existing repository or creates one if absent.
func CreateOrOpen(ctx context.Context, blocks rstore.Store, opts Options) (*Repository, error) {
	opts = opts.withDefaults()
	opts.Mode = ModeCreateOrOpen
	return open(ctx, blocks, opts)
}

func open(ctx context.Context, blocks rstore.Store, opts Options) (*Repository, error) {
	sbBytes, sbPresent, err := blocks.Read(rstore.SuperKey)
	if err != nil {
		return nil, wrapStore(err)
	}

	switch {
	case opts.Mode == ModeCreateNew && sbPresent:
		return nil, &RepoError{Kind: ErrAlreadyExists}
	case opts.Mode == ModeOpen && !sbPresent:
		return nil, &RepoError{Kind: ErrNotFound}
	}

	var sb *header.Superblock
	var hdr *header.Header
	var master keymat.MasterKey

	if sbPresent && opts.Mode != ModeCreateNew {
		// openExisting validates the password precondition itself,
		// against the encryption algorithm actually recorded in the
		// stored Superblock rather than opts.Encryption: a caller
		// opening an existing repository supplies only the password,
		// not the encryption choice, which is already on disk.
		sb, hdr, master, err = openExisting(blocks, sbBytes, opts)
		if err != nil {
			return nil, err
		}
	} else {
		// spec.md §4.10: encryption configured and no password, or no
		// encryption and a password supplied anyway, are both
		// precondition failures on the create path.
		wantEncryption := opts.Encryption != codec.EncryptionNone
		havePassword := len(opts.Password) > 0
		if wantEncryption != havePassword {
			return nil, &RepoError{Kind: ErrPassword}
		}
		sb, hdr, master, err = createFresh(blocks, opts)
		if err != nil {
			return nil, err
		}
	}

	id := sb.RepositoryUUID
	lockCtx := opts.LockContext
	tok, err := lockmgr.Acquire(ctx, blocks, id, opts.LockStrategy, lockCtx, opts.StaleCheck)
	if err != nil {
		return nil, translateLockErr(err)
	}

	repo := &Repository{
		blocks:   blocks,
		params:   codec.Params{Compression: sb.Compression, Encryption: sb.Encryption},
		master:   master,
		sb:       sb,
		chunking: chunker.Params{Kind: sb.Chunking.Kind, FixedSize: sb.Chunking.FixedSize, Bits: sb.Chunking.Bits},
		logger:   opts.Logger,
		txn:      txn.New(blocks, codec.Params{Compression: sb.Compression, Encryption: sb.Encryption}, master.Bytes(), sb, hdr),
		lock:     tok,
	}
	repo.rebind(sb)

	opts.Logger.Info("repository opened", "repository", id, "mode", opts.Mode)
	return repo, nil
}

func openExisting(blocks rstore.Store, sbBytes []byte, opts Options) (*header.Superblock, *header.Header, keymat.MasterKey, error) {
	sb, err := header.UnmarshalSuperblock(sbBytes)
	if err != nil {
		return nil, nil, keymat.MasterKey{}, &RepoError{Kind: ErrDeserialize, Cause: err}
	}

	verBytes, ok, err := blocks.Read(rstore.VersionKey)
	if err != nil {
		return nil, nil, keymat.MasterKey{}, wrapStore(err)
	}
	if ok {
		ver, parseErr := parseVersionBlock(verBytes)
		if parseErr != nil || ver != currentFormatVersionID {
			return nil, nil, keymat.MasterKey{}, &RepoError{Kind: ErrUnsupportedFormat}
		}
	}
	if sb.FormatVersion != header.FormatVersion {
		return nil, nil, keymat.MasterKey{}, &RepoError{Kind: ErrUnsupportedFormat}
	}

	wantEncryption := sb.Encryption != codec.EncryptionNone
	havePassword := len(opts.Password) > 0
	if wantEncryption != havePassword {
		return nil, nil, keymat.MasterKey{}, &RepoError{Kind: ErrPassword}
	}

	var userKey []byte
	if wantEncryption {
		userKey = keymat.DeriveUserKey(opts.Password, sb.KDFParams)
	}
	master, err := keymat.UnwrapMasterKey(sb.WrappedMasterKey, userKey, sb.Encryption)
	if err != nil {
		if errors.Is(err, codec.ErrAuthFailed) {
			return nil, nil, keymat.MasterKey{}, &RepoError{Kind: ErrPassword}
		}
		return nil, nil, keymat.MasterKey{}, &RepoError{Kind: ErrInvalidData, Cause: err}
	}

	hdr, hdrErr := readHeader(blocks, codec.Params{Compression: sb.Compression, Encryption: sb.Encryption}, master.Bytes(), sb.CurrentHeaderID)
	if hdrErr != nil {
		// Fall back to the previous header: the superblock invariant
		// guarantees at least one of {current, previous} is consistent
		// and readable (spec.md §3, §7).
		hdr, hdrErr = readHeader(blocks, codec.Params{Compression: sb.Compression, Encryption: sb.Encryption}, master.Bytes(), sb.PreviousHeaderID)
		if hdrErr != nil {
			return nil, nil, keymat.MasterKey{}, &RepoError{Kind: ErrInvalidData, Cause: hdrErr}
		}
	}

	return sb, hdr, master, nil
}

func readHeader(blocks rstore.Store, params codec.Params, key []byte, id uuid.UUID) (*header.Header, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("objectrepo: no header block id")
	}
	raw, ok, err := blocks.Read(rstore.HeaderKey(id))
	if err != nil {
		return nil, fmt.Errorf("objectrepo: read header block: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("objectrepo: header block %s missing", id)
	}
	decoded, err := params.Decode(raw, key)
	if err != nil {
		return nil, fmt.Errorf("objectrepo: decode header block: %w", err)
	}
	hdr, err := header.Unmarshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("objectrepo: unmarshal header block: %w", err)
	}
	return hdr, nil
}

func createFresh(blocks rstore.Store, opts Options) (*header.Superblock, *header.Header, keymat.MasterKey, error) {
	wantEncryption := opts.Encryption != codec.EncryptionNone

	// A master key is always generated, even with EncryptionNone: the
	// chunk store's params.Encode ignores the key in that case, but
	// giving every repository a real key keeps Repository.master
	// uniform regardless of configuration.
	keySize := opts.Encryption.KeySize()
	if keySize == 0 {
		keySize = 32
	}
	master, err := keymat.GenerateMasterKey(keySize)
	if err != nil {
		return nil, nil, keymat.MasterKey{}, fmt.Errorf("objectrepo: generate master key: %w", err)
	}

	var kdf keymat.KDFParams
	var userKey []byte
	if wantEncryption {
		kdf, err = keymat.NewKDFParams(opts.KDFMemory, opts.KDFOperations)
		if err != nil {
			return nil, nil, keymat.MasterKey{}, err
		}
		userKey = keymat.DeriveUserKey(opts.Password, kdf)
	}

	wrapped, err := keymat.WrapMasterKey(master, userKey, opts.Encryption)
	if err != nil {
		return nil, nil, keymat.MasterKey{}, fmt.Errorf("objectrepo: wrap master key: %w", err)
	}

	sb := &header.Superblock{
		RepositoryUUID: uuid.New(),
		FormatVersion:  header.FormatVersion,
		Chunking: header.ChunkingParams{
			Kind:      opts.Chunking.Kind,
			FixedSize: opts.Chunking.FixedSize,
			Bits:      opts.Chunking.Bits,
		},
		Packing:          opts.Packing,
		Compression:      opts.Compression,
		Encryption:       opts.Encryption,
		KDFParams:        kdf,
		WrappedMasterKey: wrapped,
	}

	hdr := header.New()

	if err := writeVersionBlock(blocks); err != nil {
		return nil, nil, keymat.MasterKey{}, err
	}

	return sb, hdr, master, nil
}

func writeVersionBlock(blocks rstore.Store) error {
	idBytes, err := currentFormatVersionID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("objectrepo: marshal version id: %w", err)
	}
	return blocks.Write(rstore.VersionKey, idBytes)
}

func parseVersionBlock(data []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("objectrepo: parse version block: %w", err)
	}
	return id, nil
}

// rebind (re)creates every component that is constructed around a
// specific *header.Header pointer, binding them to the transaction
// manager's current in-memory header. txn.Manager.Restore and Rollback
// both replace that pointer wholesale (a Clone, not a mutation in
// place), so a chunk store or instance manager built over the old
// pointer would silently keep reading and writing stale state; rebind
// must run after construction and after every Restore/Rollback.
func (r *Repository) rebind(sb *header.Superblock) {
	hdr := r.txn.Current()
	r.instances = instance.New(hdr)
	if sb.Packing.Mode == header.PackingFixed {
		r.packStore = pack.New(r.blocks, r.params, r.master.Bytes(), hdr, sb.Packing.PackSize)
		r.chunks = r.packStore
	} else {
		r.packStore = nil
		r.chunks = chunkstore.New(r.blocks, r.params, r.master.Bytes(), hdr)
	}
}

func translateLockErr(err error) error {
	if errors.Is(err, lockmgr.ErrLocked) {
		return &RepoError{Kind: ErrLocked, Cause: err}
	}
	return wrapStore(err)
}

// Commit flushes every open Object, flushes any pending pack, and
// atomically flips the Superblock to point at the new header,
// reclaiming any Data and Header blocks the new header no longer
// references (spec.md §4.8).
func (r *Repository) Commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	flushObjects := func() error {
		for _, obj := range r.open {
			if err := obj.flush(); err != nil {
				return fmt.Errorf("flush object: %w", err)
			}
		}
		return nil
	}
	flushPacks := func() error {
		if r.packStore == nil {
			return nil
		}
		return r.packStore.FlushPending()
	}

	if err := r.txn.Commit(flushObjects, flushPacks); err != nil {
		return wrapIO(err)
	}
	r.logger.Info("repository committed", "repository", r.sb.RepositoryUUID)
	return nil
}

// Rollback discards every uncommitted change since the last Commit,
// including any bytes written through still-open Objects: each open
// Object is reset to its committed contents (empty if it has none),
// with its position back at 0.
func (r *Repository) Rollback() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.txn.Rollback(); err != nil {
		return wrapIO(err)
	}
	r.rebind(r.sb)
	for _, obj := range r.open {
		var handle header.ObjectHandle
		if obj.isKeyed {
			handle, _ = r.instances.Get(obj.instance, obj.key)
		} else {
			handle, _ = r.instances.GetManaged(obj.instance, obj.managed)
		}
		obj.view = object.New(r.chunks, r.chunking, handle)
	}
	r.logger.Info("repository rolled back", "repository", r.sb.RepositoryUUID)
	return nil
}

// Savepoint marks the current, uncommitted state so it can later be
// restored with Restore. A savepoint is invalidated by any Commit or
// Rollback that happens after it was taken.
func (r *Repository) Savepoint() *Savepoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Savepoint{inner: r.txn.Savepoint()}
}

// Savepoint is an opaque marker returned by Repository.Savepoint.
type Savepoint struct {
	inner *txn.Savepoint
}

// Restore rewinds the repository to sp. It fails with ErrInvalidSavepoint
// if a Commit or Rollback has happened since sp was taken.
func (r *Repository) Restore(sp *Savepoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.txn.Restore(sp.inner); err != nil {
		if errors.Is(err, txn.ErrInvalidSavepoint) {
			return &RepoError{Kind: ErrInvalidSavepoint, Cause: err}
		}
		return wrapIO(err)
	}
	r.rebind(r.sb)
	for _, obj := range r.open {
		obj.rebind(r.chunks)
	}
	return nil
}

// Close releases the cross-process and in-process lock held by this
// handle and zeroes the in-memory master key (spec.md §4.1 "Key
// zeroization"). Any uncommitted changes are discarded, matching the
// drop-rolls-back semantics of spec.md §5 ("Cancellation / timeouts").
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.master.Zero()
	if r.lock == nil {
		return nil
	}
	if err := r.lock.Release(); err != nil {
		return fmt.Errorf("objectrepo: release lock: %w", err)
	}
	r.logger.Info("repository closed", "repository", r.sb.RepositoryUUID)
	return nil
}
