/*
Package security groups the cryptographic and credential handling of
Bastion.

  - envelope: AES-256-GCM envelope format sealing audit sub-objects
  - keys: key service client and the data key cache
  - secrets: ${secret:name} resolution for credentials in configuration
  - auth: API key authentication of evaluation callers

Plaintext data keys never leave the process. They are zeroed when evicted
from the cache and after a single use on the decrypt path.
*/
package security
