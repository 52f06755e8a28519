package engine

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// loadedAccount is one account shared by every frame of an instruction.
type loadedAccount struct {
	info     *svm.AccountInfo
	original accounts.Account
	existed  bool
}

// invocation holds the state of one top-level instruction.
type invocation struct {
	engine *Engine
	clock  svm.Clock
	rent   svm.Rent
	meter  *svm.ComputeMeter

	state map[types.Pubkey]*loadedAccount
	order []types.Pubkey

	logs       []string
	returnData []byte
}

// load reads every referenced account from store exactly once.
func (inv *invocation) load(store accounts.Store, metas []svm.AccountMeta) {
	for _, meta := range metas {
		if _, ok := inv.state[meta.Pubkey]; ok {
			continue
		}
		acc, existed := store.Get(meta.Pubkey)
		if !existed {
			acc = accounts.Account{Owner: types.SystemProgramAddr}
		}
		inv.state[meta.Pubkey] = &loadedAccount{
			info: &svm.AccountInfo{
				Key:        meta.Pubkey,
				Owner:      acc.Owner,
				Lamports:   acc.Lamports,
				Data:       bytes.Clone(acc.Data),
				Executable: acc.Executable,
				RentEpoch:  acc.RentEpoch,
			},
			original: acc,
			existed:  existed,
		}
		inv.order = append(inv.order, meta.Pubkey)
	}
}

// current returns the live state of key as an Account.
func (inv *invocation) current(key types.Pubkey) accounts.Account {
	info := inv.state[key].info
	return accounts.Account{
		Lamports:   info.Lamports,
		Data:       bytes.Clone(info.Data),
		Owner:      info.Owner,
		Executable: info.Executable,
		RentEpoch:  info.RentEpoch,
	}
}

// commit writes writable accounts back to store. An account that did not
// exist before and is still empty stays absent.
func (inv *invocation) commit(store accounts.Store, metas []svm.AccountMeta) {
	writable := make(map[types.Pubkey]bool, len(metas))
	for _, meta := range metas {
		if meta.IsWritable {
			writable[meta.Pubkey] = true
		}
	}
	for _, key := range inv.order {
		if !writable[key] {
			continue
		}
		la := inv.state[key]
		acc := inv.current(key)
		if !la.existed && isEmpty(acc) {
			continue
		}
		store.Put(key, acc)
	}
}

// resulting lists every referenced account in first-reference order.
// When original is set the pre-execution states are returned.
func (inv *invocation) resulting(original bool) []accounts.KeyedAccount {
	out := make([]accounts.KeyedAccount, 0, len(inv.order))
	for _, key := range inv.order {
		acc := inv.state[key].original.Clone()
		if !original {
			acc = inv.current(key)
		}
		out = append(out, accounts.KeyedAccount{Pubkey: key, Account: acc})
	}
	return out
}

func (inv *invocation) log(format string, args ...any) {
	inv.logs = append(inv.logs, fmt.Sprintf(format, args...))
}

// process runs ix at the given stack height. signers are the program
// derived addresses the caller signs for.
func (inv *invocation) process(ix svm.Instruction, signers map[types.Pubkey]bool, height int) error {
	if height > MaxInvokeDepth {
		return svm.NewInstructionError(svm.KindCallDepth, "")
	}

	prog, err := inv.engine.Program(ix.ProgramID)
	if err != nil {
		inv.log("Program %s is not supported", ix.ProgramID)
		return svm.NewInstructionError(svm.KindUnsupportedProgramID, ix.ProgramID.String())
	}

	f, err := inv.newFrame(ix, signers, height)
	if err != nil {
		return err
	}
	f.applyPrivileges()

	inv.log("Program %s invoke [%d]", ix.ProgramID, height)
	before := inv.meter.Remaining()

	err = f.call(prog, ix.Data)
	if err == nil {
		err = f.verify()
	}

	inv.log("Program %s consumed %d of %d compute units",
		ix.ProgramID, before-inv.meter.Remaining(), before)
	if err != nil {
		inv.log("Program %s failed: %v", ix.ProgramID, err)
		return err
	}
	inv.log("Program %s success", ix.ProgramID)
	return nil
}

// privilege is the merged access an instruction grants to one account.
type privilege struct {
	signer   bool
	writable bool
}

// frame is the view of one program invocation. It implements
// svm.InvokeContext.
type frame struct {
	inv       *invocation
	programID types.Pubkey
	height    int

	metas      []svm.AccountMeta
	keys       []types.Pubkey
	privileges map[types.Pubkey]privilege

	// pre is the state every account had when this frame last verified.
	pre map[types.Pubkey]accounts.Account
}

// newFrame builds the frame for ix. For nested invocations the caller's
// privileges were already checked by Invoke; here only presence matters.
func (inv *invocation) newFrame(ix svm.Instruction, signers map[types.Pubkey]bool, height int) (*frame, error) {
	f := &frame{
		inv:        inv,
		programID:  ix.ProgramID,
		height:     height,
		metas:      ix.Accounts,
		privileges: make(map[types.Pubkey]privilege, len(ix.Accounts)),
		pre:        make(map[types.Pubkey]accounts.Account, len(ix.Accounts)),
	}
	for _, meta := range ix.Accounts {
		if _, ok := inv.state[meta.Pubkey]; !ok {
			return nil, svm.NewInstructionError(svm.KindMissingAccount, meta.Pubkey.String())
		}
		p, seen := f.privileges[meta.Pubkey]
		p.signer = p.signer || meta.IsSigner || signers[meta.Pubkey]
		p.writable = p.writable || meta.IsWritable
		f.privileges[meta.Pubkey] = p
		if !seen {
			f.keys = append(f.keys, meta.Pubkey)
			f.pre[meta.Pubkey] = inv.current(meta.Pubkey)
		}
	}
	return f, nil
}

// applyPrivileges sets the signer and writable flags of the shared
// accounts to this frame's view.
func (f *frame) applyPrivileges() {
	for _, key := range f.keys {
		p := f.privileges[key]
		info := f.inv.state[key].info
		info.IsSigner = p.signer
		info.IsWritable = p.writable
	}
}

// call runs prog, turning a panic into an engine error.
func (f *frame) call(prog svm.Program, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = svm.NewInstructionError(svm.KindProgramFailedToComplete, fmt.Sprintf("panic: %v", r))
		}
	}()
	return prog.Process(f, data)
}

// verify checks every change made since the last verification against
// this frame's privileges, then records the current state as the new
// baseline.
func (f *frame) verify() error {
	var preHi, preLo, postHi, postLo uint64
	for _, key := range f.keys {
		before := f.pre[key]
		after := f.inv.state[key].info
		p := f.privileges[key]

		if err := f.verifyAccount(before, after, p); err != nil {
			return err
		}

		var carry uint64
		preLo, carry = bits.Add64(preLo, before.Lamports, 0)
		preHi += carry
		postLo, carry = bits.Add64(postLo, after.Lamports, 0)
		postHi += carry
	}
	if preHi != postHi || preLo != postLo {
		return svm.NewInstructionError(svm.KindUnbalancedInstruction, "")
	}

	for _, key := range f.keys {
		f.pre[key] = f.inv.current(key)
	}
	return nil
}

func (f *frame) verifyAccount(before accounts.Account, after *svm.AccountInfo, p privilege) error {
	key := after.Key
	ownedByProgram := before.Owner == f.programID

	if after.Owner != before.Owner {
		if !p.writable || before.Executable || !ownedByProgram || !isZeroed(after.Data) {
			return svm.NewInstructionError(svm.KindModifiedProgramID, key.String())
		}
	}

	if after.Lamports != before.Lamports {
		if !p.writable {
			return svm.NewInstructionError(svm.KindReadonlyLamportChange, key.String())
		}
		if after.Lamports < before.Lamports && !ownedByProgram {
			return svm.NewInstructionError(svm.KindExternalAccountLamportSpend, key.String())
		}
		if before.Executable {
			return svm.NewInstructionError(svm.KindExecutableModified, key.String())
		}
	}

	if !bytes.Equal(after.Data, before.Data) {
		if !p.writable {
			return svm.NewInstructionError(svm.KindReadonlyDataModified, key.String())
		}
		if !ownedByProgram {
			return svm.NewInstructionError(svm.KindExternalAccountDataModified, key.String())
		}
		if before.Executable {
			return svm.NewInstructionError(svm.KindExecutableModified, key.String())
		}
		if uint64(len(after.Data)) > accounts.MaxAccountDataSize {
			return svm.NewInstructionError(svm.KindInvalidRealloc, key.String())
		}
	}

	if after.Executable != before.Executable {
		return svm.NewInstructionError(svm.KindExecutableModified, key.String())
	}
	if after.RentEpoch != before.RentEpoch && !p.writable {
		return svm.NewInstructionError(svm.KindReadonlyDataModified, key.String())
	}
	return nil
}

// ProgramID implements svm.InvokeContext.
func (f *frame) ProgramID() types.Pubkey {
	return f.programID
}

// NumAccounts implements svm.InvokeContext.
func (f *frame) NumAccounts() int {
	return len(f.metas)
}

// Account implements svm.InvokeContext.
func (f *frame) Account(index int) (*svm.AccountInfo, error) {
	if index < 0 || index >= len(f.metas) {
		return nil, svm.ErrNotEnoughAccountKeys
	}
	return f.inv.state[f.metas[index].Pubkey].info, nil
}

// Clock implements svm.InvokeContext.
func (f *frame) Clock() svm.Clock {
	return f.inv.clock
}

// Rent implements svm.InvokeContext.
func (f *frame) Rent() svm.Rent {
	return f.inv.rent
}

// ConsumeCU implements svm.InvokeContext.
func (f *frame) ConsumeCU(units uint64) error {
	return f.inv.meter.Consume(units)
}

// Log implements svm.InvokeContext.
func (f *frame) Log(format string, args ...any) {
	f.inv.log("Program log: "+format, args...)
}

// SetReturnData implements svm.InvokeContext. Data beyond MaxReturnData is
// dropped.
func (f *frame) SetReturnData(data []byte) {
	if len(data) > MaxReturnData {
		data = data[:MaxReturnData]
	}
	f.inv.returnData = bytes.Clone(data)
	if len(data) > 0 {
		f.inv.log("Program return: %s %d bytes", f.programID, len(data))
	}
}

// StackHeight implements svm.InvokeContext.
func (f *frame) StackHeight() int {
	return f.height
}

// Invoke implements svm.InvokeContext.
func (f *frame) Invoke(ix svm.Instruction, signerSeeds ...[][]byte) error {
	cost := CUInvokeBase + CUInvokePerAccount*uint64(len(ix.Accounts))
	if err := f.inv.meter.Consume(cost); err != nil {
		return err
	}
	if len(ix.Data) > MaxInstructionDataSize {
		return svm.NewInstructionError(svm.KindInvalidInstructionData, "invoke data too large")
	}

	signers := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, err := types.CreateProgramAddress(seeds, f.programID)
		if err != nil {
			return svm.ErrInvalidSeeds
		}
		signers[pda] = true
	}

	for _, meta := range ix.Accounts {
		p, ok := f.privileges[meta.Pubkey]
		if !ok {
			return svm.NewInstructionError(svm.KindMissingAccount, meta.Pubkey.String())
		}
		if meta.IsWritable && !p.writable {
			return svm.NewInstructionError(svm.KindPrivilegeEscalation, meta.Pubkey.String()+" writable")
		}
		if meta.IsSigner && !p.signer && !signers[meta.Pubkey] {
			return svm.NewInstructionError(svm.KindPrivilegeEscalation, meta.Pubkey.String()+" signer")
		}
	}

	// The caller's own changes are checked before the callee sees them.
	if err := f.verify(); err != nil {
		return err
	}

	err := f.inv.process(ix, signers, f.height+1)
	f.applyPrivileges()
	if err != nil {
		return err
	}

	for _, key := range f.keys {
		f.pre[key] = f.inv.current(key)
	}
	return nil
}

// isZeroed reports whether data is all zero bytes.
func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// isEmpty reports whether acc is indistinguishable from an absent account.
func isEmpty(acc accounts.Account) bool {
	return acc.Lamports == 0 && len(acc.Data) == 0 && !acc.Executable &&
		acc.Owner == types.SystemProgramAddr
}
