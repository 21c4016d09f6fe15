// Package web3 contains the EVM helpers the agents need around the canister's
// threshold-ECDSA wallet: address validation before a balance lookup and
// exact wei to ETH conversion when rendering balances.
package web3
