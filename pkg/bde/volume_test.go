package bde

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bdecrypto "github.com/deploymenttheory/go-bde/internal/crypto"
	"github.com/deploymenttheory/go-bde/internal/sectorcrypt"
	"github.com/deploymenttheory/go-bde/internal/types"
)

const (
	blockHeaderSize    = 80
	metadataHeaderSize = 32
	fixtureSectorSize  = 512
)

// buildEntry assembles one tagged metadata entry (mirrors the on-disk
// layout internal/fve decodes: {size, type, value_type, version, payload}).
func buildEntry(entryType types.EntryType, valueType types.ValueType, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(buf)))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(entryType))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(valueType))
	copy(buf[8:], payload)
	return buf
}

// buildBlock assembles one full on-disk FVE metadata block: header,
// metadata header, and dataset, laid out exactly as internal/fve's
// parseBlockHeader/parseMetadataHeader expect.
func buildBlock(offsets [3]uint64, version types.MetadataVersion, method types.EncryptionMethod, encVolSize uint64, numHeaderSectors uint16, backupSectorOffset uint64, dataset []byte) []byte {
	buf := make([]byte, blockHeaderSize+metadataHeaderSize+len(dataset))
	copy(buf[0:8], types.BlockSignature[:])
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(buf)))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(version))
	binary.LittleEndian.PutUint64(buf[12:20], encVolSize)
	binary.LittleEndian.PutUint16(buf[20:22], numHeaderSectors)
	binary.LittleEndian.PutUint64(buf[24:32], offsets[0])
	binary.LittleEndian.PutUint64(buf[32:40], offsets[1])
	binary.LittleEndian.PutUint64(buf[40:48], offsets[2])
	binary.LittleEndian.PutUint64(buf[48:56], backupSectorOffset)
	binary.LittleEndian.PutUint32(buf[56:60], uint32(method))

	binary.LittleEndian.PutUint32(buf[80:84], uint32(metadataHeaderSize+len(dataset)))
	binary.LittleEndian.PutUint32(buf[84:88], uint32(version))
	binary.LittleEndian.PutUint32(buf[88:92], 1) // NextNonceCounter
	binary.LittleEndian.PutUint32(buf[104:108], uint32(len(dataset)))

	copy(buf[112:], dataset)
	return buf
}

// buildNTFSBootSector assembles a minimal Windows 7+ boot sector carrying
// the three FVE offsets in its vendor-reserved tail, the layout
// internal/ntfsboot.ParseNTFSBootSector and DiscoverFVEOffsets expect.
func buildNTFSBootSector(offsets [3]uint64) []byte {
	buf := make([]byte, types.BootSectorSize)
	copy(buf[3:11], []byte(types.NTFSOEMID))
	binary.LittleEndian.PutUint16(buf[11:13], fixtureSectorSize)
	// ParseNTFSBootSector reads the three FVE offsets immediately
	// following the fixed BPB fields it decodes sequentially, at a fixed
	// byte 76 (3 jump + 8 OEMID + ... + 8 VolumeSerialNumber).
	const fveOffsetsStart = 76
	for i, offset := range offsets {
		binary.LittleEndian.PutUint64(buf[fveOffsetsStart+i*8:], offset)
	}
	binary.LittleEndian.PutUint16(buf[len(buf)-2:], types.BootSignatureValue)
	return buf
}

// ccmEncrypt mirrors internal/crypto's AES-CCM construction (CTR keyed
// from the nonce, CBC-MAC over zero-padded plaintext) so fixtures can be
// built without depending on crypto package internals.
func ccmEncrypt(t *testing.T, key, nonce, plaintext []byte) (ciphertext, tag []byte) {
	t.Helper()
	blockCipher, err := aes.NewCipher(key)
	require.NoError(t, err)

	counterBlock := make([]byte, aes.BlockSize)
	copy(counterBlock, nonce)
	binary.BigEndian.PutUint32(counterBlock[12:], 1)
	ciphertext = make([]byte, len(plaintext))
	cipher.NewCTR(blockCipher, counterBlock).XORKeyStream(ciphertext, plaintext)

	mac := make([]byte, aes.BlockSize)
	macBlock := make([]byte, aes.BlockSize)
	copy(macBlock, nonce)
	blockCipher.Encrypt(mac, macBlock)
	padded := plaintext
	if rem := len(padded) % aes.BlockSize; rem != 0 {
		padded = append(append([]byte{}, padded...), make([]byte, aes.BlockSize-rem)...)
	}
	for off := 0; off < len(padded); off += aes.BlockSize {
		block := make([]byte, aes.BlockSize)
		for i := 0; i < aes.BlockSize; i++ {
			block[i] = mac[i] ^ padded[off+i]
		}
		blockCipher.Encrypt(mac, block)
	}
	return ciphertext, mac[:16]
}

// buildCCMEntry wraps keyBytes as a nested key-entry dataset — the actual
// on-disk shape of AES-CCM-decrypted plaintext (a key entry, not the raw
// key bytes themselves) — then CCM-encrypts that dataset under key.
func buildCCMEntry(t *testing.T, key, keyBytes []byte, entryType types.EntryType) []byte {
	t.Helper()
	plaintext := buildEntry(types.EntryTypeProperty, types.ValueTypeKey, keyBytes)
	nonce := []byte("abcdefghijkl")
	ciphertext, tag := ccmEncrypt(t, key, nonce, plaintext)
	payload := append(append(append([]byte{}, nonce...), tag...), ciphertext...)
	return buildEntry(entryType, types.ValueTypeAESCCMEncryptedKey, payload)
}

// buildClearKeyVMK assembles a volume_master_key entry protected by a
// clear_key (a direct, unwrapped key sub-entry).
func buildClearKeyVMK(vmkKey []byte) []byte {
	payload := make([]byte, 28) // GUID(16) + FILETIME(8) + ProtectionType(2) + pad(2)
	binary.LittleEndian.PutUint16(payload[24:26], uint16(types.ProtectionTypeClearKey))
	payload = append(payload, buildEntry(types.EntryTypeProperty, types.ValueTypeKey, vmkKey)...)
	return buildEntry(types.EntryTypeVolumeMasterKey, types.ValueTypeVolumeMasterKey, payload)
}

// buildPasswordProtectedVMK assembles a volume_master_key entry protected
// by a password: a stretch_key sub-entry (salt + a nested
// aes_ccm_encrypted_key entry). The wrapped contents are never actually
// unwrapped by the abort scenario this is built for, so they carry
// arbitrary filler rather than a real stretched key.
func buildPasswordProtectedVMK() []byte {
	payload := make([]byte, 28) // GUID(16) + FILETIME(8) + ProtectionType(2) + pad(2)
	binary.LittleEndian.PutUint16(payload[24:26], uint16(types.ProtectionTypePassword))

	var salt [16]byte
	for i := range salt {
		salt[i] = byte(i)
	}
	nested := buildEntry(types.EntryTypeProperty, types.ValueTypeAESCCMEncryptedKey,
		append(append(make([]byte, 12), make([]byte, 16)...), []byte("filler-ciphertext")...))
	stretchPayload := append(append([]byte{}, salt[:]...), nested...)

	payload = append(payload, buildEntry(types.EntryTypeProperty, types.ValueTypeStretchKey, stretchPayload)...)
	return buildEntry(types.EntryTypeVolumeMasterKey, types.ValueTypeVolumeMasterKey, payload)
}

// buildPasswordProtectedImage assembles a minimal BDE volume image whose
// sole key protector is password-protected, so a matching user-password
// credential actually reaches the stretch-key KDF instead of being skipped
// by the protector-kind mismatch check.
func buildPasswordProtectedImage(t *testing.T) []byte {
	t.Helper()

	dataset := buildPasswordProtectedVMK()

	offsets := [3]uint64{4096, 8192, 12288}
	const encVolSize = 16384
	block := buildBlock(offsets, types.MetadataVersionWin7Plus, types.EncryptionMethodAES128CBC, encVolSize, 1, 0, dataset)

	image := make([]byte, encVolSize)
	copy(image, buildNTFSBootSector(offsets))
	for _, off := range offsets {
		copy(image[off:], block)
	}
	return image
}

// fixtureImage holds the assembled on-disk bytes plus the plaintext this
// test expects to read back after a successful unlock.
type fixtureImage struct {
	data      []byte
	plaintext []byte
	offset    uint64
}

// buildClearKeyAES128CBCImage assembles a complete, self-consistent BDE
// volume image: a Windows 7+ boot sector, three FVE metadata block copies
// carrying a clear_key-protected VMK and FVEK, and one AES-128-CBC
// encrypted sector whose plaintext this test verifies after unlock.
func buildClearKeyAES128CBCImage(t *testing.T) fixtureImage {
	t.Helper()

	fvek := make([]byte, 16)
	for i := range fvek {
		fvek[i] = byte(i + 1)
	}
	vmkKey := make([]byte, 32)
	for i := range vmkKey {
		vmkKey[i] = byte(200 - i)
	}

	dataset := append(append([]byte{}, buildClearKeyVMK(vmkKey)...),
		buildCCMEntry(t, vmkKey, fvek, types.EntryTypeFullVolumeEncryptionKey)...)

	offsets := [3]uint64{4096, 8192, 12288}
	const encVolSize = 16384
	block := buildBlock(offsets, types.MetadataVersionWin7Plus, types.EncryptionMethodAES128CBC, encVolSize, 1, 0, dataset)

	image := make([]byte, encVolSize)
	copy(image, buildNTFSBootSector(offsets))
	for _, off := range offsets {
		copy(image[off:], block)
	}

	plainSector := []byte("BDE-TEST-PLAINTEXT-SECTOR-CONTENTS")
	plainSector = append(plainSector, make([]byte, fixtureSectorSize-len(plainSector))...)

	crypto := bdecrypto.NewDefault()
	const dataOffset = fixtureSectorSize // first sector after the boot sector
	iv, err := sectorcrypt.DeriveCBCIV(crypto, fvek, dataOffset)
	require.NoError(t, err)

	blockCipher, err := aes.NewCipher(fvek)
	require.NoError(t, err)
	ciphertext := make([]byte, fixtureSectorSize)
	cipher.NewCBCEncrypter(blockCipher, iv[:]).CryptBlocks(ciphertext, plainSector)
	copy(image[dataOffset:], ciphertext)

	return fixtureImage{data: image, plaintext: plainSector, offset: dataOffset}
}

func TestVolume_ClearKeyUnlockAndReadRoundTrip(t *testing.T) {
	fixture := buildClearKeyAES128CBCImage(t)

	vol, err := OpenBytes(fixture.data)
	require.NoError(t, err)
	defer vol.Close()

	assert.True(t, vol.IsLocked())
	vol.SetClearKey()

	require.NoError(t, vol.Unlock(context.Background()))
	assert.False(t, vol.IsLocked())

	got, err := vol.ReadAt(fixture.offset, uint64(len(fixture.plaintext)))
	require.NoError(t, err)
	assert.Equal(t, fixture.plaintext, got)
}

func TestVolume_ReadBeforeUnlockReturnsNotUnlocked(t *testing.T) {
	fixture := buildClearKeyAES128CBCImage(t)
	vol, err := OpenBytes(fixture.data)
	require.NoError(t, err)
	defer vol.Close()

	_, err = vol.ReadAt(0, 16)
	require.Error(t, err)
	var bdeErr *Error
	require.ErrorAs(t, err, &bdeErr)
	assert.Equal(t, NotUnlocked, bdeErr.Kind)
}

func TestVolume_UnlockWithoutCredentialFails(t *testing.T) {
	fixture := buildClearKeyAES128CBCImage(t)
	vol, err := OpenBytes(fixture.data)
	require.NoError(t, err)
	defer vol.Close()

	err = vol.Unlock(context.Background())
	require.Error(t, err)
	var bdeErr *Error
	require.ErrorAs(t, err, &bdeErr)
	assert.Equal(t, InvalidCredential, bdeErr.Kind)
}

func TestVolume_RawFVEKUnlockSkipsVMKChain(t *testing.T) {
	fixture := buildClearKeyAES128CBCImage(t)
	vol, err := OpenBytes(fixture.data)
	require.NoError(t, err)
	defer vol.Close()

	require.NoError(t, vol.SetKeys("0102030405060708090a0b0c0d0e0f10", ""))
	require.NoError(t, vol.Unlock(context.Background()))

	got, err := vol.ReadAt(fixture.offset, uint64(len(fixture.plaintext)))
	require.NoError(t, err)
	assert.Equal(t, fixture.plaintext, got)
}

func TestVolume_AbortDuringStretchReturnsAbortedPromptly(t *testing.T) {
	image := buildPasswordProtectedImage(t)
	vol, err := OpenBytes(image)
	require.NoError(t, err)
	defer vol.Close()

	// The protection type matches, so Unlock actually enters the
	// stretch-key KDF rather than short-circuiting on a protector-kind
	// mismatch; the wrapped key material itself is never reached.
	require.NoError(t, vol.SetPassword("whatever-password"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = vol.Unlock(ctx)
	elapsed := time.Since(start)

	require.Error(t, err)
	var bdeErr *Error
	require.ErrorAs(t, err, &bdeErr)
	assert.Equal(t, Aborted, bdeErr.Kind)
	assert.Less(t, elapsed, 500*time.Millisecond, "abort must bound cancellation latency to a small multiple of the poll interval")
}

func TestVolume_DiagnosticsReportsKeyProtectorCount(t *testing.T) {
	fixture := buildClearKeyAES128CBCImage(t)
	vol, err := OpenBytes(fixture.data)
	require.NoError(t, err)
	defer vol.Close()

	diag := vol.Diagnostics()
	assert.Equal(t, 1, diag.NumberOfKeyProtectors)
	assert.Equal(t, 3, diag.ValidBlockCount)
}

func TestVolume_KeyProtectorOutOfRangeReturnsOutOfRange(t *testing.T) {
	fixture := buildClearKeyAES128CBCImage(t)
	vol, err := OpenBytes(fixture.data)
	require.NoError(t, err)
	defer vol.Close()

	_, err = vol.KeyProtector(5)
	require.Error(t, err)
	var bdeErr *Error
	require.ErrorAs(t, err, &bdeErr)
	assert.Equal(t, OutOfRange, bdeErr.Kind)
}
