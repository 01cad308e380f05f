//go:build linux

package ipc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SharedRegion is a POSIX shared-memory object backing one MET slot,
// mapped into the process's address space for direct byte access by the
// codec package (§4.5).
type SharedRegion struct {
	name string
	fd   int
	data []byte
}

// NewSharedRegion creates (or, if owner is false, opens) a POSIX shared
// memory object of the given size under /dev/shm/<name> and maps it.
// Close never unlinks it; the owning server removes the name with Unlink,
// and controllers that merely open an existing region leave it. Linux implements
// shm_open(3) as a plain open(2) against the tmpfs mounted at /dev/shm, so
// metcore talks to it directly rather than depending on libc's wrapper.
func NewSharedRegion(name string, size int, owner bool) (*SharedRegion, error) {
	path := shmPath(name)

	flags := unix.O_RDWR | unix.O_CLOEXEC
	if owner {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("ipc: open %s: %w", path, err)
	}

	if owner {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("ipc: ftruncate %s: %w", name, err)
		}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ipc: mmap %s: %w", name, err)
	}

	return &SharedRegion{name: name, fd: fd, data: data}, nil
}

// Bytes returns the mapped region for direct codec.EncodeSlot/DecodeSlot
// use.
func (s *SharedRegion) Bytes() []byte {
	return s.data
}

// Name returns the shm object's basename (without the leading slash).
func (s *SharedRegion) Name() string {
	return s.name
}

// Fd returns the region's underlying descriptor, for handoff to a child at
// fork (§3, §4.6 step 3).
func (s *SharedRegion) Fd() int {
	return s.fd
}

// Close unmaps the region and closes its descriptor. It does not unlink the
// backing object; the owner removes its name with Unlink.
func (s *SharedRegion) Close() error {
	err1 := unix.Munmap(s.data)
	err2 := unix.Close(s.fd)
	if err1 != nil {
		return err1
	}
	return err2
}

// OpenSharedRegionFd maps an already-open shared-memory descriptor — one
// inherited across fork/exec rather than opened by this process (§3's
// "file descriptors pass across exec") — into this process's address
// space. Unlike NewSharedRegion, it performs no open(2)/ftruncate(2): the
// descriptor and its backing size are already established by whichever
// process created the region.
func OpenSharedRegionFd(fd, size int) (*SharedRegion, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ipc: mmap inherited shm fd %d: %w", fd, err)
	}
	return &SharedRegion{fd: fd, data: data}, nil
}

// Unlink removes the named shared memory object from /dev/shm. The server
// calls this right after the initial-ready barrier (§4.6 step 5); mappings
// already established in the server and its controllers stay valid.
func Unlink(name string) error {
	return unix.Unlink(shmPath(name))
}

func shmPath(name string) string {
	return "/dev/shm/" + name
}
