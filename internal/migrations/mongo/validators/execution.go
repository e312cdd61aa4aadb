package validators

import "go.mongodb.org/mongo-driver/bson"

var ExecutionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"robot_id",
			"user_id",
			"status",
			"response_time",
			"executed_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"robot_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"status": bson.M{
				"enum": []string{"success", "error"},
			},

			"response_time": bson.M{
				"bsonType": []string{"double", "int", "long"},
				"minimum":  0,
			},

			"executed_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
