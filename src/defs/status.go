package defs

import "fmt"

// Err_t is the kernel's status/error code type. Zero means success;
// negative values are failures. It is never wrapped — callers switch
// on the numeric value or compare against the named constants below.
type Err_t int

// Tid_t names a cooperating task (the Go goroutine standing in for a
// kernel thread).
type Tid_t int

// ASID_t names an address-space id, the small integer a process's
// area/lock/naming state is indexed by.
type ASID_t int

func (e Err_t) String() string {
	if s, ok := errnames[e]; ok {
		return s
	}
	return fmt.Sprintf("Err_t(%d)", int(e))
}

// Error satisfies the error interface so an Err_t can be returned
// anywhere Go code expects one, without losing the numeric code at
// call sites that still want to switch on it.
func (e Err_t) Error() string {
	return e.String()
}

// Ok reports whether e is the zero/success code.
func (e Err_t) Ok() bool {
	return e == 0
}

// Status taxonomy (spec §7), one constant block per owning module.
// The numbering is arbitrary (unlike the m68k original's packed
// module/code words) since this module's non-goals explicitly drop
// byte-exact status-code compatibility.
const (
	// AST module
	EObjectNotFound Err_t = -(iota + 1)
	EDuplicateAOTE
	EASTNoSpace
	EASTInTrans

	// Area module
	EAreaNotActive
	EAreaNotOwner
	EAreaNoneFree
	EAreaInTrans

	// File lock module
	EObjectInUse
	ENotLockedByProcess
	ELocalLockTableFull
	EIllegalLockRequest
	EVolMountedReadOnly

	// Naming module
	EInvalidPathname
	ENameNotFound
	ENameTooLong

	// EC2 module
	EEC2BadEventCount
	EEC2RegistrationFull
	EEC2UnableToAllocateL1
	EEC2Level1NotAllocated
	EEC2AsyncFaultWhileWaiting

	// DXM module
	EDXMNoQueueSlots

	// Programmer / generic errors
	EInvalidArg
	EInsufficientRights
	ENoMem
	EFault

	// Quit / interruption
	EQuit
)

var errnames = map[Err_t]string{
	0:                           "ok",
	EObjectNotFound:             "file_object_not_found",
	EDuplicateAOTE:              "ast_duplicate_aote",
	EASTNoSpace:                 "ast_no_space",
	EASTInTrans:                 "ast_in_trans",
	EAreaNotActive:              "area_not_active",
	EAreaNotOwner:               "area_not_owner",
	EAreaNoneFree:               "area_none_free",
	EAreaInTrans:                "area_in_trans",
	EObjectInUse:                "file_object_in_use",
	ENotLockedByProcess:         "file_object_not_locked_by_this_process",
	ELocalLockTableFull:         "local_lock_table_full",
	EIllegalLockRequest:         "file_illegal_lock_request",
	EVolMountedReadOnly:         "file_vol_mounted_read_only",
	EInvalidPathname:            "naming_invalid_pathname",
	ENameNotFound:               "naming_name_not_found",
	ENameTooLong:                "naming_name_too_long",
	EEC2BadEventCount:           "ec2_bad_event_count",
	EEC2RegistrationFull:        "ec2_registration_full",
	EEC2UnableToAllocateL1:      "ec2_unable_to_allocate_level_1_eventcount",
	EEC2Level1NotAllocated:      "ec2_level_1_ec_not_allocated",
	EEC2AsyncFaultWhileWaiting:  "ec2_async_fault_while_waiting",
	EDXMNoQueueSlots:            "no_more_deferred_execution_queue_slots",
	EInvalidArg:                 "file_invalid_arg",
	EInsufficientRights:         "insufficient_rights",
	ENoMem:                      "enomem",
	EFault:                      "efault",
	EQuit:                       "quit_signalled_while_waiting",
}

// Fatal panics with a named status, used for the handful of invariant
// violations spec §7 calls out as "fatal — invoke the system-crash
// path", e.g. a duplicate AOTE on insert or a DXM queue overrun.
func Fatal(e Err_t, msg string) {
	panic(fmt.Sprintf("FATAL %s: %s", e, msg))
}
