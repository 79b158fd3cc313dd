package awsprovider

import "strings"

// serviceAliases maps verbose Cost Explorer service names to the short
// names engineers actually use.
var serviceAliases = map[string]string{
	"Amazon Elastic Compute Cloud - Compute":          "EC2",
	"Elastic Compute Cloud - Compute":                 "EC2",
	"Amazon Simple Storage Service":                   "S3",
	"Amazon Relational Database Service":              "RDS",
	"Amazon ElastiCache":                              "ElastiCache",
	"Amazon Elastic Container Service":                "ECS",
	"Amazon Elastic Container Service for Kubernetes": "EKS",
	"Amazon Elastic Kubernetes Service":               "EKS",
	"Amazon Elastic Load Balancing":                   "ELB",
	"Elastic Load Balancing":                          "ELB",
	"Amazon CloudFront":                               "CloudFront",
	"Amazon CloudWatch":                               "CloudWatch",
	"AmazonCloudWatch":                                "CloudWatch",
	"Amazon Simple Queue Service":                     "SQS",
	"Amazon Simple Notification Service":              "SNS",
	"Amazon DynamoDB":                                 "DynamoDB",
	"Amazon OpenSearch Service":                       "OpenSearch",
	"AWS Lambda":                                      "Lambda",
	"Amazon Virtual Private Cloud":                    "VPC",
	"Amazon Route 53":                                 "Route 53",
	"AWS Key Management Service":                      "KMS",
	"Amazon Elastic File System":                      "EFS",
	"Amazon Elastic Block Store":                      "EBS",
	"Amazon Kinesis":                                  "Kinesis",
	"AWS Glue":                                        "Glue",
	"Amazon Redshift":                                 "Redshift",
	"Amazon Athena":                                   "Athena",
	"AWS Secrets Manager":                             "Secrets Manager",
	"AWS Step Functions":                              "Step Functions",
	"Amazon API Gateway":                              "API Gateway",
	"AWS Data Transfer":                               "Data Transfer",
}

// FriendlyServiceName returns the short alias for a Cost Explorer service
// name. Unknown services keep their raw name with the vendor prefix
// trimmed.
func FriendlyServiceName(raw string) string {
	if alias, ok := serviceAliases[raw]; ok {
		return alias
	}
	trimmed := strings.TrimPrefix(raw, "Amazon ")
	trimmed = strings.TrimPrefix(trimmed, "AWS ")
	return trimmed
}
