// Package ddb provides a DynamoDB-backed agas.CreditStore.
//
// The global credit table of a deployment spanning several processes must
// survive any single locality. DynamoDB's atomic update expressions give the
// linearizable add-and-return the authority relies on:
//
//	SET credit = if_not_exists(credit, :seed) + :delta
//
// Table schema:
//   - Partition key: gid (string) - the stripped identifier in hex
//   - Attribute: credit (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name gidref-credits \
//	  --attribute-definitions AttributeName=gid,AttributeType=S \
//	  --key-schema AttributeName=gid,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package ddb
