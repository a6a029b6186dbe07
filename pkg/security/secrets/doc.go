/*
Package secrets resolves credential references in configuration.

Credential fields such as keys.token or reputation.api_key may hold a
reference instead of the literal value:

	keys:
	  token: ${secret:key-service-token}

A Manager asks its providers in order for the named secret:

  - EnvProvider reads BASTION_SECRET_KEY_SERVICE_TOKEN (prefix, upper case,
    hyphens become underscores)
  - FileProvider reads <dir>/key-service-token, Kubernetes style, and refuses
    files readable by group or others

Resolution happens once at startup. A reference that no provider can
satisfy is an error, so a process never starts with a literal
"${secret:...}" as its credential.
*/
package secrets
