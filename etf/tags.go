package etf

// Tag bytes of the External Term Format, version 1 (leading byte 131).
// Names follow the convention used throughout the ETF literature and the
// corpus this package is grounded on: "ett" + the tag's conventional name.
const (
	EtVersion = 131

	ettNewFloat      = 70  // NEW_FLOAT_EXT
	ettBitBinary     = 77  // BIT_BINARY_EXT
	ettCacheRef      = 82  // ATOM_CACHE_REF
	ettNewPid        = 88  // NEW_PID_EXT
	ettNewPort       = 89  // NEW_PORT_EXT
	ettNewerRef      = 90  // NEWER_REFERENCE_EXT
	ettSmallInteger  = 97  // SMALL_INTEGER_EXT
	ettInteger       = 98  // INTEGER_EXT
	ettFloat         = 99  // FLOAT_EXT (deprecated string-form float)
	ettAtom          = 100 // ATOM_EXT (deprecated)
	ettReference     = 101 // REFERENCE_EXT (deprecated)
	ettPort          = 102 // PORT_EXT (deprecated)
	ettPid           = 103 // PID_EXT (deprecated)
	ettSmallTuple    = 104 // SMALL_TUPLE_EXT
	ettLargeTuple    = 105 // LARGE_TUPLE_EXT
	ettNil           = 106 // NIL_EXT
	ettString        = 107 // STRING_EXT
	ettList          = 108 // LIST_EXT
	ettBinary        = 109 // BINARY_EXT
	ettSmallBig      = 110 // SMALL_BIG_EXT
	ettLargeBig      = 111 // LARGE_BIG_EXT
	ettNewFun        = 112 // NEW_FUN_EXT
	ettExport        = 113 // EXPORT_EXT
	ettNewRef        = 114 // NEW_REFERENCE_EXT
	ettSmallAtom     = 115 // SMALL_ATOM_EXT (deprecated)
	ettMap           = 116 // MAP_EXT
	ettFun           = 117 // FUN_EXT (old-style closure)
	ettAtomUTF8      = 118 // ATOM_UTF8_EXT
	ettSmallAtomUTF8 = 119 // SMALL_ATOM_UTF8_EXT
)
