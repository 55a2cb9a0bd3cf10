// Package asr defines the canonical types shared by every streaming
// speech-recognition vendor integration: normalized recognition results,
// the session callback interface, connection states, and the error taxonomy.
//
// A streaming session (see the session subpackage) accepts raw PCM audio,
// forwards it to a vendor over a persistent socket, and delivers normalized
// [Result] values to a caller-supplied [Handler]. Vendor adapters (soniox,
// tencent) translate their wire formats into these types; callers never see
// vendor-specific structures.
package asr
