package abi

import "fmt"

// Status is the return code of a server-side protocol handler. Zero is
// success, errors are negative error numbers.
type Status int64

const (
	EOK      Status = 0
	EPERM    Status = -1
	ENOENT   Status = -2
	ENOMEM   Status = -12
	EBUSY    Status = -16
	EEXIST   Status = -17
	EINVAL   Status = -22
	ENOSYS   Status = -38
	ENOREPLY Status = -1001
)

var statusNames = map[Status]string{
	EOK:      "EOK",
	EPERM:    "EPERM",
	ENOENT:   "ENOENT",
	ENOMEM:   "ENOMEM",
	EBUSY:    "EBUSY",
	EEXIST:   "EEXIST",
	EINVAL:   "EINVAL",
	ENOSYS:   "ENOSYS",
	ENOREPLY: "ENOREPLY",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int64(s))
}

// SuppressReply reports whether the transport must not send a reply frame.
func (s Status) SuppressReply() bool {
	return s == ENOREPLY
}
